package models

type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type StudyCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}
