// Package lms defines the learning-management schema whose rows cascade on
// soft delete: courses own classes, enrollments and assignments; enrollments
// own grades; assignments own per-student submissions and comments.
package lms

import (
	"time"

	"softcascade/internal/core/entity"
)

// Entity type names.
const (
	TypeCourse            = "course"
	TypeCourseTeacher     = "course_teacher"
	TypeCourseClass       = "course_class"
	TypeEnrollment        = "enrollment"
	TypeGrade             = "grade"
	TypeAssignment        = "assignment"
	TypeGradedAssignment  = "graded_assignment"
	TypeStudentAssignment = "student_assignment"
	TypeAssignmentComment = "assignment_comment"
	TypeCourseNews        = "course_news"
	TypeNewsAttachment    = "news_attachment"
)

// Course is the usual cascade root.
type Course struct {
	ID        entity.Key `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	StartsOn  time.Time  `db:"starts_on" json:"startsOn"`
	entity.SoftDeletion
}

func (c *Course) EntityRef() entity.Ref { return entity.NewRef(TypeCourse, c.ID) }

// CourseTeacher is the generated many-to-many junction between courses and
// teachers. It has no lifecycle of its own.
type CourseTeacher struct {
	ID        entity.Key `db:"id" json:"id"`
	CourseID  entity.Key `db:"course_id" ref:"course" json:"courseId"`
	TeacherID int64      `db:"teacher_id" json:"teacherId"`
	entity.SoftDeletion
}

func (c *CourseTeacher) EntityRef() entity.Ref { return entity.NewRef(TypeCourseTeacher, c.ID) }
func (CourseTeacher) AutoCreated() bool         { return true }

// CourseClass is a scheduled session.
type CourseClass struct {
	ID       entity.Key `db:"id" json:"id"`
	CourseID entity.Key `db:"course_id" ref:"course" json:"courseId"`
	Name     string     `db:"name" json:"name"`
	entity.SoftDeletion
}

func (c *CourseClass) EntityRef() entity.Ref { return entity.NewRef(TypeCourseClass, c.ID) }

// Enrollment binds a student to a course.
type Enrollment struct {
	ID        entity.Key `db:"id" json:"id"`
	CourseID  entity.Key `db:"course_id" ref:"course" json:"courseId"`
	StudentID int64      `db:"student_id" json:"studentId"`
	entity.SoftDeletion
}

func (e *Enrollment) EntityRef() entity.Ref { return entity.NewRef(TypeEnrollment, e.ID) }

// Grade is the final grade of an enrollment.
type Grade struct {
	ID           entity.Key `db:"id" json:"id"`
	EnrollmentID entity.Key `db:"enrollment_id" ref:"enrollment" json:"enrollmentId"`
	Value        int        `db:"value" json:"value"`
	entity.SoftDeletion
}

func (g *Grade) EntityRef() entity.Ref { return entity.NewRef(TypeGrade, g.ID) }

// Assignment is a task within a course.
type Assignment struct {
	ID       entity.Key `db:"id" json:"id"`
	CourseID entity.Key `db:"course_id" ref:"course" json:"courseId"`
	Title    string     `db:"title" json:"title"`
	entity.SoftDeletion
}

func (a *Assignment) EntityRef() entity.Ref { return entity.NewRef(TypeAssignment, a.ID) }

// GradedAssignment extends an Assignment (is-a) with a passing score. Its
// primary key is also the link to the extended row.
type GradedAssignment struct {
	ID           entity.Key `db:"id" json:"id"`
	AssignmentID entity.Key `db:"assignment_id" ref:"assignment,parent_link" json:"assignmentId"`
	PassingScore int        `db:"passing_score" json:"passingScore"`
	entity.SoftDeletion
}

func (g *GradedAssignment) EntityRef() entity.Ref { return entity.NewRef(TypeGradedAssignment, g.ID) }

// StudentAssignment is one student's submission for an assignment.
type StudentAssignment struct {
	ID           entity.Key `db:"id" json:"id"`
	AssignmentID entity.Key `db:"assignment_id" ref:"assignment" json:"assignmentId"`
	StudentID    int64      `db:"student_id" json:"studentId"`
	Score        *int       `db:"score" json:"score,omitempty"`
	entity.SoftDeletion
}

func (s *StudentAssignment) EntityRef() entity.Ref { return entity.NewRef(TypeStudentAssignment, s.ID) }

// AssignmentComment is a threaded comment on a submission.
type AssignmentComment struct {
	ID                  entity.Key  `db:"id" json:"id"`
	StudentAssignmentID entity.Key  `db:"student_assignment_id" ref:"student_assignment" json:"studentAssignmentId"`
	ParentCommentID     *entity.Key `db:"parent_comment_id" ref:"assignment_comment" json:"parentCommentId,omitempty"`
	Text                string      `db:"text" json:"text"`
	entity.SoftDeletion
}

func (c *AssignmentComment) EntityRef() entity.Ref { return entity.NewRef(TypeAssignmentComment, c.ID) }

// CourseNews is hard-deleted content. It has no deletion timestamp and is
// only traversed to reach its attachments.
type CourseNews struct {
	ID       entity.Key `db:"id" json:"id"`
	CourseID entity.Key `db:"course_id" ref:"course" json:"courseId"`
	Title    string     `db:"title" json:"title"`
}

func (n *CourseNews) EntityRef() entity.Ref { return entity.NewRef(TypeCourseNews, n.ID) }

// NewsAttachment is a file attached to a news item.
type NewsAttachment struct {
	ID           entity.Key `db:"id" json:"id"`
	CourseNewsID entity.Key `db:"course_news_id" ref:"course_news" json:"courseNewsId"`
	FileName     string     `db:"file_name" json:"fileName"`
	entity.SoftDeletion
}

func (a *NewsAttachment) EntityRef() entity.Ref { return entity.NewRef(TypeNewsAttachment, a.ID) }

// Models lists every model in registration order.
func Models() []any {
	return []any{
		&Course{},
		&CourseTeacher{},
		&CourseClass{},
		&Enrollment{},
		&Grade{},
		&Assignment{},
		&GradedAssignment{},
		&StudentAssignment{},
		&AssignmentComment{},
		&CourseNews{},
		&NewsAttachment{},
	}
}
