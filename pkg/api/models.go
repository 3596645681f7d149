package api

import "time"

type SubmitTaskRequest struct {
	UserID             int    `json:"user_id"`
	PersonaDescription string `json:"persona_description"`
	BioLanguage        string `json:"bio_language"`
	NumberToGenerate   int    `json:"number_to_generate"`
	ImagesPerPersona   int    `json:"images_per_persona"`
}

type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type Task struct {
	TaskID             string     `json:"task_id"`
	UserID             int        `json:"user_id"`
	PersonaDescription string     `json:"persona_description"`
	BioLanguage        string     `json:"bio_language"`
	NumberToGenerate   int        `json:"number_to_generate"`
	ImagesPerPersona   int        `json:"images_per_persona"`
	Status             string     `json:"status"`
	ErrorLog           string     `json:"error_log,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

type Persona struct {
	ID           uint     `json:"id"`
	BatchNumber  int      `json:"batch_number"`
	Firstname    string   `json:"firstname"`
	Lastname     string   `json:"lastname"`
	Gender       string   `json:"gender"`
	BioFacebook  string   `json:"bio_facebook"`
	BioInstagram string   `json:"bio_instagram"`
	BioX         string   `json:"bio_x"`
	BioTiktok    string   `json:"bio_tiktok"`
	Ethnicity    string   `json:"ethnicity,omitempty"`
	Age          *int64   `json:"age,omitempty"`
	BaseImageURL string   `json:"base_image_url,omitempty"`
	Images       []string `json:"images"`
}

type TaskDetailResponse struct {
	Task     Task      `json:"task"`
	Personas []Persona `json:"personas"`
}

type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

type ListTasksQuery struct {
	UserID int `schema:"user_id"`
}

type TaskProgress struct {
	TaskID             string `json:"task_id"`
	Status             string `json:"status"`
	PersonasRequested  int    `json:"personas_requested"`
	PersonasGenerated  int    `json:"personas_generated"`
	PersonasWithImages int    `json:"personas_with_images"`
}

type Settings struct {
	BioPromptFacebook  string `json:"bio_prompt_facebook"`
	BioPromptInstagram string `json:"bio_prompt_instagram"`
	BioPromptX         string `json:"bio_prompt_x"`
	BioPromptTiktok    string `json:"bio_prompt_tiktok"`
}
