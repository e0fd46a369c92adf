// Package queue keeps the external dispatch handles of scheduled posts as
// delayed asynq tasks.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskTypeDispatchPost = "dispatch:post"

type DispatchPostPayload struct {
	PostID string `json:"post_id"`
}

func newDispatchTask(postID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DispatchPostPayload{PostID: postID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDispatchPost, payload), nil
}

func parseDispatchTask(task *asynq.Task) (DispatchPostPayload, error) {
	var payload DispatchPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decoding %s payload: %w", task.Type(), err)
	}
	if payload.PostID == "" {
		return payload, fmt.Errorf("%s payload has no post id", task.Type())
	}
	return payload, nil
}
