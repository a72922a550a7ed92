package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionQuizzesWrite allows creating quizzes.
	PermissionQuizzesWrite Permission = "quizzes:write"

	// PermissionQuizzesPublish allows publishing quizzes to respondents.
	PermissionQuizzesPublish Permission = "quizzes:publish"

	// PermissionQuestionsWrite allows previewing and importing question files.
	PermissionQuestionsWrite Permission = "questions:write"

	// PermissionAttemptsRead allows viewing every respondent's attempts on a quiz.
	PermissionAttemptsRead Permission = "attempts:read"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionQuizzesWrite,
	PermissionQuizzesPublish,
	PermissionQuestionsWrite,
	PermissionAttemptsRead,
}

// Role names carried in identity tokens.
const (
	RoleRespondent = "respondent"
	RoleAdmin      = "admin"
)

// PermissionStrings returns AllPermissions as plain strings for token claims.
func PermissionStrings() []string {
	out := make([]string, len(AllPermissions))
	for i, p := range AllPermissions {
		out[i] = string(p)
	}
	return out
}
