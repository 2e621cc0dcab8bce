// seed-demo-data inserts a starter catalog of doctor personas and sales
// scenarios so visits can be created against a fresh database.
//
// Usage: go run ./scripts/seed-demo-data
//
// Database connection: uses standard PG* environment variables.
//
// Flags:
//
//	-dry-run   Show what would be inserted without actually inserting (default: false)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
)

type doctor struct {
	name        string
	personality string
	empathy     int
	specialty   string
	prompt      string
}

type scenario struct {
	title       string
	description string
	difficulty  string
	prompt      string
}

var doctors = []doctor{
	{
		name:        "Dr. Sokolova",
		personality: "demanding",
		empathy:     3,
		specialty:   "cardiology",
		prompt:      "You are a busy hospital cardiologist with fifteen minutes between consultations. You expect visitors to get to the point and back up every claim with trial data.",
	},
	{
		name:        "Dr. Petrov",
		personality: "quiet",
		empathy:     6,
		specialty:   "general practice",
		prompt:      "You are a reserved general practitioner who rarely interrupts. You answer briefly and only open up when the visitor asks about your patients' actual needs.",
	},
	{
		name:        "Dr. Volkova",
		personality: "aggressive",
		empathy:     2,
		specialty:   "endocrinology",
		prompt:      "You are an endocrinologist burned by overpromising sales reps. You challenge every statement and bring up a competing product unprompted.",
	},
	{
		name:        "Dr. Lebedev",
		personality: "rational",
		empathy:     5,
		specialty:   "neurology",
		prompt:      "You are a methodical neurologist. You weigh evidence out loud, ask for study design details, and never commit in the first conversation.",
	},
	{
		name:        "Dr. Morozova",
		personality: "empathetic",
		empathy:     9,
		specialty:   "pediatrics",
		prompt:      "You are a warm pediatrician who cares most about side-effect profiles and how a therapy fits a family's daily life.",
	},
}

var scenarios = []scenario{
	{
		title:       "New statin launch",
		description: "Introduce a newly approved statin to a physician already satisfied with the current standard of care.",
		difficulty:  "intermediate",
		prompt:      "The rep is presenting a new statin with improved LDL reduction but a higher price point. You currently prescribe a well-known generic.",
	},
	{
		title:       "First meeting, cold call",
		description: "Open a relationship with a physician who has never met this company's representatives.",
		difficulty:  "beginner",
		prompt:      "The rep has no prior relationship with you. You have five minutes and mild curiosity.",
	},
	{
		title:       "Formulary objection",
		description: "Handle a physician whose hospital formulary excludes the promoted product.",
		difficulty:  "advanced",
		prompt:      "Your hospital formulary does not include the rep's product and the committee meets twice a year. You see no reason to fight for an addition.",
	},
	{
		title:       "Adverse event follow-up",
		description: "Rebuild trust after one of the physician's patients reported a side effect attributed to the product.",
		difficulty:  "expert",
		prompt:      "One of your patients had a pronounced adverse reaction you attribute to the rep's product. You reported it and switched the patient off the therapy.",
	},
}

func main() {
	dryRun := flag.Bool("dry-run", false, "show what would be inserted without inserting")
	flag.Parse()

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect (check PG* env vars): %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close(ctx) }()

	if *dryRun {
		for _, d := range doctors {
			fmt.Printf("would insert doctor: %s (%s, %s)\n", d.name, d.personality, d.specialty)
		}
		for _, s := range scenarios {
			fmt.Printf("would insert scenario: %s (%s)\n", s.title, s.difficulty)
		}
		return
	}

	for _, d := range doctors {
		_, err := conn.Exec(ctx, `
			INSERT INTO doctors (name, personality_type, empathy_level, specialty, prompt_template)
			SELECT $1, $2, $3, $4, $5
			WHERE NOT EXISTS (SELECT 1 FROM doctors WHERE name = $1)`,
			d.name, d.personality, d.empathy, d.specialty, d.prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to insert doctor %s: %v\n", d.name, err)
			os.Exit(1)
		}
		fmt.Printf("doctor: %s\n", d.name)
	}

	for _, s := range scenarios {
		_, err := conn.Exec(ctx, `
			INSERT INTO scenarios (title, description, difficulty_level, prompt_template)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (SELECT 1 FROM scenarios WHERE title = $1)`,
			s.title, s.description, s.difficulty, s.prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to insert scenario %s: %v\n", s.title, err)
			os.Exit(1)
		}
		fmt.Printf("scenario: %s\n", s.title)
	}
}
