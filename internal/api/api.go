package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"avatar-backend/internal/database"
	"avatar-backend/pkg/api"
)

const (
	minPersonasPerTask = 10
	maxPersonasPerTask = 300
)

type BackendService struct {
	store *database.Store
}

func NewBackendService(store *database.Store) *BackendService {
	return &BackendService{store: store}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitTask))
		r.Get("/", RestHandler(s.ListTasks))
		r.Get("/{task_id}", RestHandler(s.GetTask))
		r.Get("/{task_id}/progress", RestHandler(s.GetTaskProgress))
	})
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetSettings))
		r.Put("/", RestHandler(s.UpdateSettings))
	})
}

func (s *BackendService) SubmitTask(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SubmitTaskRequest](r)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.PersonaDescription) == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "persona_description is required")
	}
	if req.NumberToGenerate < minPersonasPerTask || req.NumberToGenerate > maxPersonasPerTask {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "number_to_generate must be between %d and %d", minPersonasPerTask, maxPersonasPerTask)
	}
	if req.ImagesPerPersona != 4 && req.ImagesPerPersona != 8 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "images_per_persona must be 4 or 8")
	}

	ctx := r.Context()

	task := &database.GenerationTask{
		UserID:             req.UserID,
		PersonaDescription: req.PersonaDescription,
		BioLanguage:        req.BioLanguage,
		NumberToGenerate:   req.NumberToGenerate,
		ImagesPerPersona:   req.ImagesPerPersona,
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		slog.Error("error creating task", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create task")
	}

	slog.Info("submitted generation task", "task", task.TaskID, "user", task.UserID, "personas", task.NumberToGenerate)
	return api.SubmitTaskResponse{TaskID: task.TaskID, Status: task.Status}, nil
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.ListTasksQuery](r)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(r.Context(), query.UserID)
	if err != nil {
		slog.Error("error listing tasks", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving tasks")
	}

	res := api.ListTasksResponse{Tasks: make([]api.Task, 0, len(tasks))}
	for i := range tasks {
		res.Tasks = append(res.Tasks, convertTask(&tasks[i]))
	}
	return res, nil
}

func (s *BackendService) GetTask(r *http.Request) (any, error) {
	token, err := URLParamTaskToken(r, "task_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	task, err := s.store.GetTaskByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "task not found")
		}
		slog.Error("error getting task", "task", token, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task record")
	}

	results, err := s.store.GetResults(ctx, task.ID)
	if err != nil {
		slog.Error("error getting task results", "task", token, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task personas")
	}

	res := api.TaskDetailResponse{Task: convertTask(task), Personas: make([]api.Persona, 0, len(results))}
	for i := range results {
		res.Personas = append(res.Personas, convertPersona(&results[i]))
	}
	return res, nil
}

func (s *BackendService) GetTaskProgress(r *http.Request) (any, error) {
	token, err := URLParamTaskToken(r, "task_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	task, err := s.store.GetTaskByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "task not found")
		}
		slog.Error("error getting task", "task", token, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task record")
	}

	results, err := s.store.GetResults(ctx, task.ID)
	if err != nil {
		slog.Error("error getting task results", "task", token, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task progress")
	}

	withImages := 0
	for i := range results {
		if len(database.ResultImages(&results[i])) > 0 {
			withImages++
		}
	}

	return api.TaskProgress{
		TaskID:             task.TaskID,
		Status:             task.Status,
		PersonasRequested:  task.NumberToGenerate,
		PersonasGenerated:  len(results),
		PersonasWithImages: withImages,
	}, nil
}

func (s *BackendService) GetSettings(r *http.Request) (any, error) {
	ctx := r.Context()

	settings, err := s.store.GetBioSettings(ctx)
	if err != nil {
		slog.Error("error getting settings", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving settings")
	}

	return api.Settings{
		BioPromptFacebook:  settings.Facebook,
		BioPromptInstagram: settings.Instagram,
		BioPromptX:         settings.X,
		BioPromptTiktok:    settings.Tiktok,
	}, nil
}

func (s *BackendService) UpdateSettings(r *http.Request) (any, error) {
	req, err := ParseRequest[api.Settings](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	updates := map[string]string{
		"bio_prompt_facebook":  req.BioPromptFacebook,
		"bio_prompt_instagram": req.BioPromptInstagram,
		"bio_prompt_x":         req.BioPromptX,
		"bio_prompt_tiktok":    req.BioPromptTiktok,
	}
	for key, value := range updates {
		if err := s.store.SetSetting(ctx, key, value); err != nil {
			slog.Error("error updating setting", "key", key, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error updating setting %s", key)
		}
	}

	return req, nil
}

func convertTask(task *database.GenerationTask) api.Task {
	res := api.Task{
		TaskID:             task.TaskID,
		UserID:             task.UserID,
		PersonaDescription: task.PersonaDescription,
		BioLanguage:        task.BioLanguage,
		NumberToGenerate:   task.NumberToGenerate,
		ImagesPerPersona:   task.ImagesPerPersona,
		Status:             task.Status,
		ErrorLog:           task.ErrorLog,
		CreatedAt:          task.CreatedAt,
		UpdatedAt:          task.UpdatedAt,
	}
	if task.CompletedAt.Valid {
		completedAt := task.CompletedAt.Time
		res.CompletedAt = &completedAt
	}
	return res
}

func convertPersona(result *database.GenerationResult) api.Persona {
	persona := api.Persona{
		ID:           result.ID,
		BatchNumber:  result.BatchNumber,
		Firstname:    result.Firstname,
		Lastname:     result.Lastname,
		Gender:       result.Gender,
		BioFacebook:  result.BioFacebook,
		BioInstagram: result.BioInstagram,
		BioX:         result.BioX,
		BioTiktok:    result.BioTiktok,
		Ethnicity:    result.Ethnicity,
		BaseImageURL: result.BaseImageURL,
		Images:       database.ResultImages(result),
	}
	if persona.Images == nil {
		persona.Images = []string{}
	}
	if result.Age.Valid {
		age := result.Age.Int64
		persona.Age = &age
	}
	return persona
}
