// Package retail simulates an online store backend with users, orders and
// a product catalogue.
package retail

import (
	_ "embed"

	"taubench/internal/domains"
	"taubench/internal/task"
	"taubench/internal/worldstate"
)

// Name is the catalogue name of the domain.
const Name = "retail"

var (
	//go:embed data/db.json
	seedData []byte
	//go:embed data/test_tasks.yaml
	testTasks []byte
	//go:embed wiki.md
	wiki string
)

// Rules are hard constraints the agent is told about on every turn.
var Rules = []string{
	"You are a customer service representative for an online retail company. Help the user with their request following the policy.",
	"Authenticate the user by email, or by name and zip code, before looking up or changing anything.",
	"Make at most one tool call at a time, and do not respond to the user in the same turn.",
	"Obtain explicit user confirmation before taking an action that changes an order or a user profile.",
}

// New builds the retail domain.
func New() (domains.Domain, error) {
	test, err := domains.LoadTasks(Name, testTasks, task.FormatYAML)
	if err != nil {
		return domains.Domain{}, err
	}
	return domains.Domain{
		Name:          Name,
		Loader:        Loader(),
		RegisterTools: RegisterTools,
		Splits:        map[string][]task.Task{"test": test},
		Wiki:          wiki,
		Rules:         append([]string(nil), Rules...),
	}, nil
}

// Loader decodes the embedded seed data afresh on every call.
func Loader() worldstate.Loader {
	return worldstate.JSONLoader(seedData)
}
