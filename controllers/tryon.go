package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"stylemorphapi/models"
	"stylemorphapi/services"
	"stylemorphapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
)

type UpdateInstructionsIn struct {
	Instructions string `json:"instructions" validate:"max=2000"`
}

type ClosetGarmentIn struct {
	ObjectKey string `json:"object_key" validate:"required,max=500"`
	MimeType  string `json:"mime_type" validate:"omitempty,imagemime"`
}

type ResultsResponse struct {
	Results    []models.GenerationOutcome `json:"results"`
	Generating bool                       `json:"generating"`
}

type BatchEnqueuedResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
	State  string `json:"state"`
}

type BatchStatusResponse struct {
	TaskID    string                  `json:"task_id"`
	State     string                  `json:"state"`
	LastError string                  `json:"last_error,omitempty"`
	Result    *tasks.TryOnBatchResult `json:"result,omitempty"`
}

type TryOnController struct {
	Store  *services.SessionStore
	Runner services.BatchRunner
	Closet services.ClosetProvider
}

func (controller *TryOnController) SessionRoutes(g *echo.Group) {
	g.POST("", controller.CreateSession)

	sessionGroup := g.Group("/:sessionId", controller.SessionMiddleware)
	sessionGroup.GET("", controller.GetSession)
	sessionGroup.DELETE("", controller.DeleteSession)
	sessionGroup.PUT("/photo", controller.SetUserPhoto)
	sessionGroup.DELETE("/photo", controller.ClearUserPhoto)
	sessionGroup.POST("/outfits", controller.AddOutfit)
	sessionGroup.DELETE("/outfits/:outfitId", controller.RemoveOutfit)
	sessionGroup.PUT("/outfits/:outfitId/instructions", controller.SetInstructions)
	sessionGroup.POST("/outfits/:outfitId/garments", controller.AddGarment)
	sessionGroup.POST("/outfits/:outfitId/garments/closet", controller.ImportClosetGarment)
	sessionGroup.DELETE("/outfits/:outfitId/garments/:index", controller.RemoveGarment)
	sessionGroup.POST("/generate", controller.Generate)
	sessionGroup.POST("/generate/async", controller.GenerateAsync)
	sessionGroup.GET("/results", controller.GetResults)
	sessionGroup.GET("/results/:outfitId/download", controller.DownloadResult)
}

func (controller *TryOnController) BatchRoutes(g *echo.Group) {
	g.GET("/:taskId", controller.GetBatch)
}

func (controller *TryOnController) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, ok := controller.Store.Get(c.Param("sessionId"))
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
		}
		c.Set("__session", session)
		return next(c)
	}
}

func currentSession(c echo.Context) *services.Session {
	return c.Get("__session").(*services.Session)
}

func (controller *TryOnController) CreateSession(c echo.Context) error {
	session := controller.Store.Create()
	fmt.Println("[Session] Created", session.ID())
	return c.JSON(http.StatusCreated, session.View())
}

func (controller *TryOnController) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, currentSession(c).View())
}

func (controller *TryOnController) DeleteSession(c echo.Context) error {
	controller.Store.Delete(currentSession(c).ID())
	return c.NoContent(http.StatusNoContent)
}

func (controller *TryOnController) SetUserPhoto(c echo.Context) error {
	asset, err := readUploadedAsset(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	session := currentSession(c)
	session.SetUserPhoto(asset)
	return c.JSON(http.StatusOK, session.View())
}

func (controller *TryOnController) ClearUserPhoto(c echo.Context) error {
	session := currentSession(c)
	session.ClearUserPhoto()
	return c.JSON(http.StatusOK, session.View())
}

func (controller *TryOnController) AddOutfit(c echo.Context) error {
	outfit := currentSession(c).AddOutfit()
	return c.JSON(http.StatusCreated, outfit.View())
}

func (controller *TryOnController) RemoveOutfit(c echo.Context) error {
	session := currentSession(c)
	if err := session.RemoveOutfit(c.Param("outfitId")); err != nil {
		return outfitError(c, err)
	}
	return c.JSON(http.StatusOK, session.View())
}

func (controller *TryOnController) SetInstructions(c echo.Context) error {
	var req UpdateInstructionsIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	outfit, err := currentSession(c).SetInstructions(c.Param("outfitId"), req.Instructions)
	if err != nil {
		return outfitError(c, err)
	}
	return c.JSON(http.StatusOK, outfit.View())
}

func (controller *TryOnController) AddGarment(c echo.Context) error {
	asset, err := readUploadedAsset(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	outfit, err := currentSession(c).AddGarment(c.Param("outfitId"), asset)
	if err != nil {
		return outfitError(c, err)
	}
	return c.JSON(http.StatusCreated, outfit.View())
}

func (controller *TryOnController) ImportClosetGarment(c echo.Context) error {
	var req ClosetGarmentIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if controller.Closet == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": services.ErrClosetUnavailable.Error()})
	}
	asset, err := controller.Closet.FetchGarment(c.Request().Context(), req.ObjectKey, req.MimeType)
	if err != nil {
		if errors.Is(err, services.ErrClosetUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	outfit, err := currentSession(c).AddGarment(c.Param("outfitId"), asset)
	if err != nil {
		return outfitError(c, err)
	}
	return c.JSON(http.StatusCreated, outfit.View())
}

func (controller *TryOnController) RemoveGarment(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid garment index"})
	}
	outfit, err := currentSession(c).RemoveGarment(c.Param("outfitId"), index)
	if err != nil {
		return outfitError(c, err)
	}
	return c.JSON(http.StatusOK, outfit.View())
}

func (controller *TryOnController) Generate(c echo.Context) error {
	session := currentSession(c)
	outcomes, err := session.Generate(c.Request().Context(), controller.Runner)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingSubjectPhoto), errors.Is(err, services.ErrNoOutfitContent):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, services.ErrBatchInFlight):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, ResultsResponse{Results: outcomes, Generating: false})
}

func (controller *TryOnController) GenerateAsync(c echo.Context) error {
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok || asynqClient == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Service is not available, please try again a bit later"})
	}
	session := currentSession(c)
	photo := session.UserPhoto()
	outfits := session.Outfits()
	if err := services.ValidateTryOnBatch(photo, outfits); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	task, err := tasks.NewTryOnBatchTask(tasks.TryOnBatchPayload{
		SessionID: session.ID(),
		UserPhoto: photo,
		Outfits:   outfits,
	})
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start generation, please try again"})
	}
	info, err := asynqClient.Enqueue(task)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start generation, please try again"})
	}
	fmt.Println("[Queue] Try-on batch task submitted, Session ID: ", session.ID(), " Task ID: ", info.ID)
	return c.JSON(http.StatusAccepted, BatchEnqueuedResponse{TaskID: info.ID, Queue: info.Queue, State: info.State.String()})
}

func (controller *TryOnController) GetBatch(c echo.Context) error {
	inspector, ok := c.Get("__asynqinspector").(*asynq.Inspector)
	if !ok || inspector == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Service is not available, please try again a bit later"})
	}
	taskID := c.Param("taskId")
	info, err := inspector.GetTaskInfo(tasks.QueueGenerate, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Batch not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	response := BatchStatusResponse{TaskID: info.ID, State: info.State.String(), LastError: info.LastErr}
	if len(info.Result) > 0 {
		var result tasks.TryOnBatchResult
		if err := json.Unmarshal(info.Result, &result); err == nil {
			response.Result = &result
		}
	}
	return c.JSON(http.StatusOK, response)
}

func (controller *TryOnController) GetResults(c echo.Context) error {
	session := currentSession(c)
	return c.JSON(http.StatusOK, ResultsResponse{Results: session.Results(), Generating: session.Generating()})
}

func (controller *TryOnController) DownloadResult(c echo.Context) error {
	outfitID := c.Param("outfitId")
	result, ok := currentSession(c).Result(outfitID)
	if !ok || result.ImageURL == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No rendered image for this outfit"})
	}
	data, err := services.DecodeTryOnImage(*result.ImageURL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Rendered image is corrupted"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"stylemorph-outfit-%s.png\"", outfitID))
	return c.Blob(http.StatusOK, "image/png", data)
}

func readUploadedAsset(c echo.Context) (models.ImageAsset, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to read file: %v", err)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxImageAssetSize+1))
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to read file contents: %v", err)
	}
	return services.NewImageAssetFromUpload(data, fileHeader.Filename, c.FormValue("mime_type"))
}

func outfitError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrOutfitNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrLastOutfit):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}
