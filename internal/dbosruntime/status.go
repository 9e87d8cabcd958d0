package dbosruntime

import (
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

// ErrWorkflowNotFound is returned when no workflow has the requested ID
var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowStatusInfo is the queue-side view of one ingestion run
type WorkflowStatusInfo struct {
	WorkflowID string
	Status     string
	Name       string
	QueueName  string
	Attempts   int
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GetWorkflowStatus looks up one workflow in the DBOS system database
func (r *Runtime) GetWorkflowStatus(workflowID string) (*WorkflowStatusInfo, error) {
	list, err := dbos.ListWorkflows(r.dbosContext,
		dbos.WithWorkflowIDs([]string{workflowID}),
		dbos.WithLoadInput(false),
		dbos.WithLoadOutput(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow status: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", workflowID, ErrWorkflowNotFound)
	}
	return statusInfo(list[0]), nil
}

func statusInfo(ws dbos.WorkflowStatus) *WorkflowStatusInfo {
	info := &WorkflowStatusInfo{
		WorkflowID: ws.ID,
		Status:     string(ws.Status),
		Name:       ws.Name,
		QueueName:  ws.QueueName,
		Attempts:   ws.Attempts,
		CreatedAt:  ws.CreatedAt,
		UpdatedAt:  ws.UpdatedAt,
	}
	if ws.Error != nil {
		info.Error = ws.Error.Error()
	}
	return info
}
