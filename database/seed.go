package database

import (
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"reclaim/models"
)

type seedExercise struct {
	Title   string
	Type    string
	Minutes int
	Content string
}

type seedPhase struct {
	Letter      string
	Name        string
	Description string
	Exercises   []seedExercise
	Assessment  *models.Assessment
}

const checkInQuestions = `[
 {"id":"q1","text":"I feel safe in my body","min":0,"max":4},
 {"id":"q2","text":"I can name what I am feeling","min":0,"max":4},
 {"id":"q3","text":"Old memories overwhelm my day","min":0,"max":4},
 {"id":"q4","text":"I have someone I can reach out to","min":0,"max":4}
]`

const checkInRubric = `{
 "method":"sum",
 "reverseScored":["q3"],
 "bands":[
  {"min":0,"max":5,"label":"Early","interpretation":"Focus on grounding and safety before moving on."},
  {"min":6,"max":11,"label":"Building","interpretation":"You have footholds; keep practicing the tools from this phase."},
  {"min":12,"max":16,"label":"Steady","interpretation":"You are ready to carry these skills into the next phase."}
 ]
}`

func checkIn(title string) *models.Assessment {
	return &models.Assessment{
		Title:         title,
		Description:   "A short self-report check-in. Answer from 0 (not at all) to 4 (very much).",
		Questions:     datatypes.JSON(checkInQuestions),
		ScoringRubric: datatypes.JSON(checkInRubric),
	}
}

var phases = []seedPhase{
	{
		Letter: "H", Name: "Honor Your Story",
		Description: "Recognize what happened and how it shaped you, at your own pace.",
		Exercises: []seedExercise{
			{"What Trauma Is", "educational", 10, `{"instructions":"Read the overview of how trauma affects the nervous system."}`},
			{"Timeline Reflection", "reflection", 20, `{"instructions":"Note key moments without going into detail.","prompts":[{"id":"moments","label":"Moments that stand out","kind":"text","required":true},{"id":"intensity","label":"How intense does this feel right now?","kind":"scale","min":1,"max":10,"required":true}]}`},
			{"Naming Strengths", "interactive", 15, `{"prompts":[{"id":"strengths","label":"Pick the strengths you recognize","kind":"checklist","options":["persistence","humor","empathy","creativity","courage"],"required":true}]}`},
		},
		Assessment: checkIn("Honor Check-In"),
	},
	{
		Letter: "E", Name: "Establish Safety",
		Description: "Build grounding routines and a personal safety plan.",
		Exercises: []seedExercise{
			{"Grounding 5-4-3-2-1", "practice", 10, `{"prompts":[{"id":"practiced","label":"I completed the grounding sequence","kind":"boolean","required":true},{"id":"calm","label":"Calm afterwards","kind":"scale","min":1,"max":10}]}`},
			{"Safety Plan", "planning", 25, `{"prompts":[{"id":"warning_signs","label":"My warning signs","kind":"text","required":true},{"id":"contacts","label":"People I can contact","kind":"text","required":true}]}`},
			{"Safe Place Visualization", "practice", 15, `{"prompts":[{"id":"place","label":"Describe your safe place","kind":"text"}]}`},
		},
		Assessment: checkIn("Safety Check-In"),
	},
	{
		Letter: "A", Name: "Acknowledge Patterns",
		Description: "Notice the protective patterns you developed and when they show up.",
		Exercises: []seedExercise{
			{"Survival Responses", "educational", 10, `{}`},
			{"Trigger Log", "reflection", 20, `{"prompts":[{"id":"trigger","label":"What happened","kind":"text","required":true},{"id":"response","label":"My response","kind":"choice","options":["fight","flight","freeze","fawn"],"required":true}]}`},
		},
		Assessment: checkIn("Patterns Check-In"),
	},
	{
		Letter: "L", Name: "Let Go of Shame",
		Description: "Separate what happened to you from who you are.",
		Exercises: []seedExercise{
			{"Understanding Shame", "reading", 10, `{}`},
			{"Compassionate Letter", "reflection", 30, `{"prompts":[{"id":"letter","label":"A letter to your younger self","kind":"text","required":true}]}`},
		},
		Assessment: checkIn("Shame Check-In"),
	},
	{
		Letter: "I", Name: "Integrate Emotions",
		Description: "Learn to feel and move through emotions without being flooded.",
		Exercises: []seedExercise{
			{"Emotion Wheel", "interactive", 15, `{"prompts":[{"id":"emotions","label":"Emotions I noticed today","kind":"checklist","options":["sad","angry","afraid","joyful","ashamed","calm"],"required":true}]}`},
			{"Window of Tolerance", "educational", 10, `{}`},
		},
		Assessment: checkIn("Emotions Check-In"),
	},
	{
		Letter: "N", Name: "Nurture Boundaries",
		Description: "Practice saying no, asking for needs and protecting your energy.",
		Exercises: []seedExercise{
			{"Boundary Inventory", "planning", 20, `{"prompts":[{"id":"boundaries","label":"Boundaries I want to set","kind":"text","required":true}]}`},
			{"Scripted No", "practice", 15, `{"prompts":[{"id":"script","label":"My script","kind":"text","required":true},{"id":"confidence","label":"Confidence","kind":"scale","min":1,"max":10}]}`},
		},
		Assessment: checkIn("Boundaries Check-In"),
	},
	{
		Letter: "G", Name: "Grow Forward",
		Description: "Turn what you learned into a sustainable plan for the future.",
		Exercises: []seedExercise{
			{"Values Map", "reflection", 20, `{"prompts":[{"id":"values","label":"What matters most to me","kind":"text","required":true}]}`},
			{"Maintenance Plan", "planning", 25, `{"prompts":[{"id":"daily","label":"Daily practices","kind":"text","required":true},{"id":"support","label":"Support I will keep","kind":"text","required":true}]}`},
		},
		Assessment: checkIn("Growth Check-In"),
	},
}

// Seed inserts the seven program phases with their exercises and assessments.
// It is a no-op when phases already exist.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Phase{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info().Int64("phases", count).Msg("seed skipped, phases already present")
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for i, sp := range phases {
			phase := models.Phase{
				Letter:      sp.Letter,
				Name:        sp.Name,
				Description: sp.Description,
				Order:       i + 1,
			}
			if err := tx.Create(&phase).Error; err != nil {
				return err
			}

			for j, se := range sp.Exercises {
				exercise := models.Exercise{
					PhaseID:          phase.ID,
					Title:            se.Title,
					Type:             se.Type,
					Order:            j + 1,
					EstimatedMinutes: se.Minutes,
					Content:          datatypes.JSON(se.Content),
				}
				if err := tx.Create(&exercise).Error; err != nil {
					return err
				}
			}

			if sp.Assessment != nil {
				assessment := *sp.Assessment
				assessment.PhaseID = phase.ID
				if err := tx.Create(&assessment).Error; err != nil {
					return err
				}
			}
		}
		log.Info().Int("phases", len(phases)).Msg("seeded program content")
		return nil
	})
}
