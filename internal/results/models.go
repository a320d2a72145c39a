package results

import (
	"time"

	id "examdesk/pkg/domain"
)

// ExamStatus transitions are monotonic:
// Draft → GradingInProgress → ReadyForPublication → Published.
type ExamStatus string

const (
	ExamStatusDraft               ExamStatus = "draft"
	ExamStatusGradingInProgress   ExamStatus = "grading_in_progress"
	ExamStatusReadyForPublication ExamStatus = "ready_for_publication"
	ExamStatusPublished           ExamStatus = "published"
)

// Exam is the publication unit.
type Exam struct {
	Tenant      id.TenantID
	ID          id.ExamID
	Status      ExamStatus
	PublishedAt *time.Time
}

// GradeCategory buckets a percentage score for display.
type GradeCategory string

const (
	GradeExcellent        GradeCategory = "Excellent"
	GradeVeryGood         GradeCategory = "VeryGood"
	GradeGood             GradeCategory = "Good"
	GradeSatisfactory     GradeCategory = "Satisfactory"
	GradeNeedsImprovement GradeCategory = "NeedsImprovement"
)

// CategoryFor bands a score: ≥90 Excellent, ≥75 VeryGood, ≥60 Good,
// ≥45 Satisfactory, else NeedsImprovement.
func CategoryFor(marksObtained, totalMarks float64) GradeCategory {
	if totalMarks <= 0 {
		return GradeNeedsImprovement
	}
	pct := marksObtained / totalMarks * 100
	switch {
	case pct >= 90:
		return GradeExcellent
	case pct >= 75:
		return GradeVeryGood
	case pct >= 60:
		return GradeGood
	case pct >= 45:
		return GradeSatisfactory
	default:
		return GradeNeedsImprovement
	}
}

// GradeRecord is produced by grading and read-only for the publication
// pipeline; publication never mutates it.
type GradeRecord struct {
	Tenant        id.TenantID
	ExamID        id.ExamID
	StudentID     id.StudentID
	SubjectID     id.SubjectID
	MarksObtained float64
	TotalMarks    float64
	GradeLetter   string
	ComputedAt    time.Time
}

// Category derives the display band from the marks.
func (g *GradeRecord) Category() GradeCategory {
	return CategoryFor(g.MarksObtained, g.TotalMarks)
}

// ProgressStatus tracks one publication run. The InProgress claim doubles as
// the per-exam mutex: a second run cannot start while a live run holds it.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressFailed     ProgressStatus = "failed"
	ProgressCompleted  ProgressStatus = "completed"
)

// Progress is the durable checkpoint for resumable batch processing. A crash
// mid-run restarts from ProcessedOffset; batches already advanced are never
// reprocessed.
type Progress struct {
	Tenant          id.TenantID
	ExamID          id.ExamID
	TotalRecords    int
	ProcessedOffset int
	Status          ProgressStatus
	UpdatedAt       time.Time
}

// Report summarizes one publication run for the caller and the logs.
type Report struct {
	Attempted int
	Succeeded int
	Batches   int
	Resumed   bool
}

// Event is one publication event emitted per grade record. ID is stable
// across retries so at-least-once consumers can deduplicate.
type Event struct {
	ID          string        `json:"id"`
	Tenant      string        `json:"tenant"`
	ExamID      string        `json:"exam_id"`
	StudentID   string        `json:"student_id"`
	Category    GradeCategory `json:"category"`
	PublishedAt time.Time     `json:"published_at"`
}

// EventID builds the stable identity for a record's publication event.
func EventID(tenant id.TenantID, exam id.ExamID, student id.StudentID) string {
	return tenant.String() + ":" + exam.String() + ":" + student.String() + ":published"
}

// StudentResult is the cached, reader-facing shape of one grade.
type StudentResult struct {
	Tenant        string        `json:"tenant"`
	ExamID        string        `json:"exam_id"`
	StudentID     string        `json:"student_id"`
	SubjectID     string        `json:"subject_id"`
	MarksObtained float64       `json:"marks_obtained"`
	TotalMarks    float64       `json:"total_marks"`
	GradeLetter   string        `json:"grade_letter"`
	Category      GradeCategory `json:"category"`
	ComputedAt    time.Time     `json:"computed_at"`
}

// ResultOf projects a grade record into its cacheable form.
func ResultOf(g *GradeRecord) StudentResult {
	return StudentResult{
		Tenant:        g.Tenant.String(),
		ExamID:        g.ExamID.String(),
		StudentID:     g.StudentID.String(),
		SubjectID:     g.SubjectID.String(),
		MarksObtained: g.MarksObtained,
		TotalMarks:    g.TotalMarks,
		GradeLetter:   g.GradeLetter,
		Category:      g.Category(),
		ComputedAt:    g.ComputedAt,
	}
}
