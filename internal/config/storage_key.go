package config

import (
	"fmt"
)

type StorageKeyStruct struct {
	// AccessToken holds the backend bearer token.
	AccessToken string
	// Role holds the signed-in role ("student" or "admin").
	Role string
}

func NewStorageKeyStruct() *StorageKeyStruct {
	return &StorageKeyStruct{
		AccessToken: "access_token",
		Role:        "role",
	}
}

// QuizStateKey returns the storage key for a timed student quiz snapshot.
func (k *StorageKeyStruct) QuizStateKey(quizID, courseID string) string {
	return fmt.Sprintf("quiz_%s_%s_state", quizID, courseID)
}

// QuizAnswersKey returns the storage key for an admin's draft answer key.
func (k *StorageKeyStruct) QuizAnswersKey(quizID, courseID string) string {
	return fmt.Sprintf("quiz_answers_%s_%s", quizID, courseID)
}

var StorageKey = NewStorageKeyStruct()
