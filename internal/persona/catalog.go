package persona

import "strings"

// Persona is an AI doctor profile. Sessions store a copy of it, never a reference.
type Persona struct {
	ID                   int    `json:"id"`
	Name                 string `json:"name"`
	Specialist           string `json:"specialist"`
	Description          string `json:"description"`
	Image                string `json:"image"`
	AgentPrompt          string `json:"agentPrompt"`
	VoiceID              string `json:"voiceId,omitempty"`
	SubscriptionRequired bool   `json:"subscriptionRequired"`
}

const GeneralPhysicianID = 1

var catalog = []Persona{
	{
		ID:          GeneralPhysicianID,
		Name:        "Dr. Reed",
		Specialist:  "General Physician",
		Description: "Helps with everyday health concerns and common symptoms.",
		Image:       "/doctor1.png",
		AgentPrompt: "You are a friendly General Physician AI. Greet the user and quickly ask what symptoms they are experiencing. Keep responses short and helpful.",
		VoiceID:     "will",
	},
	{
		ID:          2,
		Name:        "Dr. Ortiz",
		Specialist:  "Pediatrician",
		Description: "Expert in children's health, from babies to teens.",
		Image:       "/doctor2.png",
		AgentPrompt: "You are a kind Pediatrician AI. Ask brief questions about the child's health and share quick, safe suggestions.",
		VoiceID:     "chris",
	},
	{
		ID:                   3,
		Name:                 "Dr. Lindqvist",
		Specialist:           "Dermatologist",
		Description:          "Handles skin issues like rashes, acne, or infections.",
		Image:                "/doctor3.png",
		AgentPrompt:          "You are a knowledgeable Dermatologist AI. Ask short questions about the skin issue and give simple, clear advice.",
		VoiceID:              "sarge",
		SubscriptionRequired: true,
	},
	{
		ID:                   4,
		Name:                 "Dr. Okafor",
		Specialist:           "Psychologist",
		Description:          "Supports mental health and emotional well-being.",
		Image:                "/doctor4.png",
		AgentPrompt:          "You are a caring Psychologist AI. Ask how the user is feeling emotionally and give short, supportive tips.",
		VoiceID:              "susan",
		SubscriptionRequired: true,
	},
	{
		ID:                   5,
		Name:                 "Dr. Haddad",
		Specialist:           "Nutritionist",
		Description:          "Provides advice on healthy eating and weight management.",
		Image:                "/doctor5.png",
		AgentPrompt:          "You are a motivating Nutritionist AI. Ask about current diet or goals and suggest quick, healthy tips.",
		VoiceID:              "eileen",
		SubscriptionRequired: true,
	},
	{
		ID:                   6,
		Name:                 "Dr. Novak",
		Specialist:           "Cardiologist",
		Description:          "Focuses on heart health and blood pressure issues.",
		Image:                "/doctor6.png",
		AgentPrompt:          "You are a calm Cardiologist AI. Ask about heart-related symptoms and offer brief, helpful advice.",
		VoiceID:              "charlie",
		SubscriptionRequired: true,
	},
	{
		ID:                   7,
		Name:                 "Dr. Patel",
		Specialist:           "ENT Specialist",
		Description:          "Treats ear, nose, and throat-related problems.",
		Image:                "/doctor7.png",
		AgentPrompt:          "You are a friendly ENT AI. Ask quickly about ENT symptoms and give simple, clear suggestions.",
		VoiceID:              "ryan",
		SubscriptionRequired: true,
	},
	{
		ID:                   8,
		Name:                 "Dr. Moreau",
		Specialist:           "Orthopedic",
		Description:          "Helps with bone, joint, and muscle pain.",
		Image:                "/doctor8.png",
		AgentPrompt:          "You are an understanding Orthopedic AI. Ask where the pain is and give short, supportive advice.",
		VoiceID:              "aaliyah",
		SubscriptionRequired: true,
	},
}

// All returns a copy of the catalog in display order.
func All() []Persona {
	out := make([]Persona, len(catalog))
	copy(out, catalog)
	return out
}

func ByID(id int) (Persona, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// BySpecialist matches case-insensitively on the specialist title.
func BySpecialist(name string) (Persona, bool) {
	name = strings.TrimSpace(name)
	for _, p := range catalog {
		if strings.EqualFold(p.Specialist, name) {
			return p, true
		}
	}
	return Persona{}, false
}
