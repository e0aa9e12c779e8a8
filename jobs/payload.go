package jobs

import "encoding/json"

func marshalJob(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
