// Package airline simulates a flight reservation backend.
package airline

import (
	_ "embed"

	"taubench/internal/domains"
	"taubench/internal/task"
	"taubench/internal/worldstate"
)

// Name is the catalogue name of the domain.
const Name = "airline"

var (
	//go:embed data/db.json
	seedData []byte
	//go:embed data/test_tasks.json
	testTasks []byte
	//go:embed data/train_tasks.json
	trainTasks []byte
	//go:embed wiki.md
	wiki string
)

// Rules are hard constraints the agent is told about on every turn.
var Rules = []string{
	"You are a customer service representative for an airline. Help the user with their request following the policy.",
	"Do not make up information that is not provided by the user or the tools.",
	"Make at most one tool call at a time, and do not respond to the user in the same turn.",
	"Obtain explicit user confirmation before taking an action that changes the booking database.",
}

// New builds the airline domain.
func New() (domains.Domain, error) {
	test, err := domains.LoadTasks(Name, testTasks, task.FormatJSON)
	if err != nil {
		return domains.Domain{}, err
	}
	train, err := domains.LoadTasks(Name, trainTasks, task.FormatJSON)
	if err != nil {
		return domains.Domain{}, err
	}
	return domains.Domain{
		Name:          Name,
		Loader:        Loader(),
		RegisterTools: RegisterTools,
		Splits:        map[string][]task.Task{"test": test, "train": train},
		Wiki:          wiki,
		Rules:         append([]string(nil), Rules...),
	}, nil
}

// Loader decodes the embedded seed data afresh on every call.
func Loader() worldstate.Loader {
	return worldstate.JSONLoader(seedData)
}
