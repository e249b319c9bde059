package lms

import (
	"time"

	"softcascade/internal/core/entity"
)

// Dataset returns a small demo school in insertion order (parents before
// children). Course 1 touches every edge of the schema; course 2 is an
// unrelated control that a cascade from course 1 must leave alone.
func Dataset(startsOn time.Time) []entity.Referencer {
	reply := entity.Key(1)
	score := 87

	return []entity.Referencer{
		&Course{ID: 1, Name: "Databases", StartsOn: startsOn},
		&Course{ID: 2, Name: "Compilers", StartsOn: startsOn},

		&CourseTeacher{ID: 1, CourseID: 1, TeacherID: 100},
		&CourseTeacher{ID: 2, CourseID: 2, TeacherID: 100},
		&CourseClass{ID: 1, CourseID: 1, Name: "Lecture 1"},
		&CourseClass{ID: 2, CourseID: 1, Name: "Lecture 2"},

		&Enrollment{ID: 1, CourseID: 1, StudentID: 500},
		&Enrollment{ID: 2, CourseID: 1, StudentID: 501},
		&Enrollment{ID: 3, CourseID: 2, StudentID: 500},
		&Grade{ID: 1, EnrollmentID: 1, Value: 5},
		&Grade{ID: 2, EnrollmentID: 2, Value: 4},
		&Grade{ID: 3, EnrollmentID: 3, Value: 3},

		&Assignment{ID: 1, CourseID: 1, Title: "Normal forms"},
		&Assignment{ID: 2, CourseID: 2, Title: "Parsing"},
		&GradedAssignment{ID: 1, AssignmentID: 1, PassingScore: 60},
		&StudentAssignment{ID: 1, AssignmentID: 1, StudentID: 500, Score: &score},
		&StudentAssignment{ID: 2, AssignmentID: 1, StudentID: 501},
		&AssignmentComment{ID: 1, StudentAssignmentID: 1, Text: "Check 3NF"},
		&AssignmentComment{ID: 2, StudentAssignmentID: 1, ParentCommentID: &reply, Text: "Fixed"},

		&CourseNews{ID: 1, CourseID: 1, Title: "Welcome"},
		&NewsAttachment{ID: 1, CourseNewsID: 1, FileName: "syllabus.pdf"},
	}
}
