// Package altegio is the client for the Altegio scheduling platform.
//
// The platform's JSON is loosely shaped and varies by endpoint and by the
// permission level of the granted tokens, so the types here are deliberately
// tolerant: unknown fields are ignored and several payloads are kept as
// json.RawMessage until a discovery strategy probes them.
package altegio

import (
	"encoding/json"
	"strconv"
)

// envelope is the standard {success, data, meta} wrapper most endpoints use.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// Service is one entry of the company service catalog.
type Service struct {
	ID       int64             `json:"id"`
	Title    string            `json:"title"`
	PriceMin float64           `json:"price_min"`
	Duration int               `json:"length"`
	StaffID  int64             `json:"staff_id,omitempty"`
	Staff    []ServiceStaffRef `json:"staff,omitempty"`
}

// ServiceStaffRef is a staff reference inside a service. The catalog emits
// either bare ids or {id, ...} objects depending on endpoint version.
type ServiceStaffRef struct {
	ID int64
}

func (r *ServiceStaffRef) UnmarshalJSON(data []byte) error {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		return nil
	}
	var obj struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		r.ID = obj.ID
		return nil
	}
	// A string id still counts.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			r.ID = id
		}
		return nil
	}
	r.ID = 0
	return nil
}

// Staff is one entry of the company staff list.
type Staff struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Specialization string  `json:"specialization,omitempty"`
	Avatar         string  `json:"avatar,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
}

// RecordClient is the client block of a booking record.
type RecordClient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// RecordService is one service line of a booking record.
type RecordService struct {
	Title    string  `json:"title"`
	Name     string  `json:"name,omitempty"`
	PriceMin float64 `json:"price_min"`
	Length   int     `json:"length"`
}

// Record is a booking record as returned by the records endpoints and as
// embedded in webhook payloads.
type Record struct {
	ID       int64           `json:"id"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
	Status   string          `json:"status"`
	Comment  string          `json:"comment"`
	Client   *RecordClient   `json:"client"`
	Services []RecordService `json:"services"`
}

// PrimaryService returns the first service line, if any.
func (r *Record) PrimaryService() *RecordService {
	if r == nil || len(r.Services) == 0 {
		return nil
	}
	return &r.Services[0]
}

// TimetableBreak is one break window inside a timetable day.
type TimetableBreak struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (b *TimetableBreak) UnmarshalJSON(data []byte) error {
	var direct struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &direct); err == nil && direct.Start != "" {
		b.Start, b.End = direct.Start, direct.End
		return nil
	}
	var alt struct {
		Start string `json:"start_time"`
		End   string `json:"end_time"`
	}
	if err := json.Unmarshal(data, &alt); err != nil {
		return err
	}
	b.Start, b.End = alt.Start, alt.End
	return nil
}

// TimetableEntry is one concrete working day from the official schedule
// endpoint.
type TimetableEntry struct {
	Date   string           `json:"date"`
	Start  string           `json:"start"`
	End    string           `json:"end"`
	Breaks []TimetableBreak `json:"breaks"`
}

// scheduleResponse is the official per-staff schedule payload.
type scheduleResponse struct {
	Timetable []TimetableEntry `json:"timetable"`
}

// CreateRecordRequest is the payload for creating a booking record.
type CreateRecordRequest struct {
	ServiceID int64
	StaffID   int64
	Date      string // "2006-01-02"
	Time      string // "15:04"
	Name      string
	Phone     string
	Email     string
	Comment   string
}

type createRecordPayload struct {
	CompanyID int64               `json:"company_id"`
	Services  []createServiceRef  `json:"services"`
	Date      string              `json:"date"`
	Time      string              `json:"time"`
	Client    createClientPayload `json:"client"`
	StaffID   int64               `json:"staff_id,omitempty"`
	Comment   string              `json:"comment,omitempty"`
}

type createServiceRef struct {
	ID int64 `json:"id"`
}

type createClientPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// DateSlots are the confirmed bookable times of one concrete date.
type DateSlots struct {
	Date  string
	Times []string
}
