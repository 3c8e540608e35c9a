package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/models"
)

func TestScheduleRequestSessionDateFormats(t *testing.T) {
	want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	var plain ScheduleRequest
	require.NoError(t, json.Unmarshal([]byte(`{"class_id":1,"session_number":2,"session_date":"2026-03-02","start_time":"09:00","end_time":"11:00"}`), &plain))
	assert.True(t, want.Equal(plain.SessionDate))
	assert.Equal(t, int64(1), plain.ClassID)
	assert.Equal(t, 2, plain.SessionNumber)
	assert.Equal(t, models.NewClockTime(9, 0), plain.StartTime)

	var stamped ScheduleRequest
	require.NoError(t, json.Unmarshal([]byte(`{"session_date":"2026-03-02T00:00:00Z"}`), &stamped))
	assert.True(t, want.Equal(stamped.SessionDate))

	var missing ScheduleRequest
	require.NoError(t, json.Unmarshal([]byte(`{"class_id":1}`), &missing))
	assert.True(t, missing.SessionDate.IsZero())

	var bad ScheduleRequest
	err := json.Unmarshal([]byte(`{"session_date":"02/03/2026"}`), &bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_date")
}

func TestClassRequestDates(t *testing.T) {
	var req ClassRequest
	require.NoError(t, json.Unmarshal([]byte(`{"course_id":3,"class_code":"GO-01","start_date":"2026-03-02","end_date":null,"max_students":12}`), &req))
	require.NotNil(t, req.StartDate)
	assert.Equal(t, time.March, req.StartDate.Month())
	assert.Nil(t, req.EndDate)
	assert.Equal(t, 12, req.MaxStudents)
	assert.Equal(t, "GO-01", req.ClassCode)

	err := json.Unmarshal([]byte(`{"end_date":"next week"}`), &req)
	require.Error(t, err)
}
