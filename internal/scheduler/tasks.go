package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSLABreachCheck = "sla.breach.check"

type SLABreachCheckPayload struct {
	LeadID     string `json:"leadId"`
	DeadlineAt string `json:"deadlineAt"`
}

func NewSLABreachCheckTask(payload SLABreachCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSLABreachCheck, data), nil
}

func ParseSLABreachCheckPayload(task *asynq.Task) (SLABreachCheckPayload, error) {
	var payload SLABreachCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SLABreachCheckPayload{}, err
	}
	return payload, nil
}
