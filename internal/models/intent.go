package models

// Intent is the conversational purpose of a query. It drives cache and routing policy.
type Intent string

const (
	IntentCoding   Intent = "coding"
	IntentFactual  Intent = "factual"
	IntentPersonal Intent = "personal"
	IntentCasual   Intent = "casual"
)

// AllIntents lists every intent in classifier priority order
var AllIntents = []Intent{IntentCoding, IntentFactual, IntentPersonal, IntentCasual}

// Valid reports whether the intent is one of the known tags
func (i Intent) Valid() bool {
	switch i {
	case IntentCoding, IntentFactual, IntentPersonal, IntentCasual:
		return true
	}
	return false
}

func (i Intent) String() string {
	return string(i)
}
