package dto

import "encoding/json"

type CreateJobRequest struct {
	JobType string          `json:"job_type" binding:"required"`
	Method  string          `json:"method" binding:"required"`
	Args    json.RawMessage `json:"args"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Path     string `form:"path"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING RUNNING COMPLETED FAILED CANCELLED"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string          `json:"job_id"`
	Path         string          `json:"path"`
	JobType      string          `json:"job_type"`
	Method       string          `json:"method"`
	Args         json.RawMessage `json:"args"`
	Status       string          `json:"status"`
	EmployeePID  *int            `json:"employee_pid,omitempty"`
	EmployeeHost string          `json:"employee_host,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Cancelled    bool            `json:"cancelled"`
	StartedAt    string          `json:"started_at,omitempty"`
	CompletedAt  string          `json:"completed_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}
