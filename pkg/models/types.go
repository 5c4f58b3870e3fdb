package models

import (
	"time"
)

// Team owns projects and carries user memberships
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamMember binds a user to a team with a role and the projects they may access
type TeamMember struct {
	TeamID   int64   `json:"team_id"`
	UserID   int64   `json:"user_id"`
	Role     string  `json:"role"`
	Projects []int64 `json:"projects"`
}

// Project belongs to exactly one team. TeamID never changes after creation.
type Project struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Chart belongs to a project
type Chart struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Dataset belongs to a chart and owns its data requests
type Dataset struct {
	ID           int64     `json:"id"`
	ChartID      int64     `json:"chart_id"`
	ConnectionID *int64    `json:"connection_id,omitempty"`
	Legend       string    `json:"legend,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResponseData is the last execution result of a data request
type ResponseData struct {
	Data any `json:"data"`
}

// DataRequest is a saved, executable query configuration scoped to one dataset
type DataRequest struct {
	ID            int64          `json:"id"`
	DatasetID     int64          `json:"dataset_id"`
	Route         string         `json:"route"`
	Method        string         `json:"method,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	ItemsLimit    int            `json:"itemsLimit"`
	ResponseData  *ResponseData  `json:"responseData,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasResponse reports whether a previous execution result was persisted
func (dr *DataRequest) HasResponse() bool {
	return dr != nil && dr.ResponseData != nil && dr.ResponseData.Data != nil
}

// Clone returns a copy that can be modified without touching the receiver.
// Configuration and ResponseData are copied one level deep.
func (dr *DataRequest) Clone() *DataRequest {
	if dr == nil {
		return nil
	}
	c := *dr
	if dr.Configuration != nil {
		c.Configuration = make(map[string]any, len(dr.Configuration))
		for k, v := range dr.Configuration {
			c.Configuration[k] = v
		}
	}
	if dr.ResponseData != nil {
		rd := *dr.ResponseData
		c.ResponseData = &rd
	}
	return &c
}

// CreateDataRequest is the body accepted when a data request is first saved
type CreateDataRequest struct {
	DatasetID     int64          `json:"dataset_id"`
	Route         string         `json:"route"`
	Method        string         `json:"method"`
	Configuration map[string]any `json:"configuration"`
	ItemsLimit    int            `json:"itemsLimit"`
}

// UpdateDataRequest holds the fields a save may change. Nil fields are left as-is.
type UpdateDataRequest struct {
	Route         *string        `json:"route,omitempty"`
	Method        *string        `json:"method,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
	ItemsLimit    *int           `json:"itemsLimit,omitempty"`
}

// Apply copies the set fields of the update onto dr
func (u *UpdateDataRequest) Apply(dr *DataRequest) {
	if u.Route != nil {
		dr.Route = *u.Route
	}
	if u.Method != nil {
		dr.Method = *u.Method
	}
	if u.Configuration != nil {
		dr.Configuration = u.Configuration
	}
	if u.ItemsLimit != nil {
		dr.ItemsLimit = *u.ItemsLimit
	}
}
