package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stylemorphapi/models"
	"stylemorphapi/services"
	"stylemorphapi/tasks"
	"stylemorphapi/test"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, e *echo.Echo) models.SessionView {
	rec := serve(e, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var view models.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response["error"]
}

func TestCreateAndGetSession(t *testing.T) {
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, nil, nil, nil)
	view := createSession(t, e)
	assert.NotEmpty(t, view.ID)
	require.Len(t, view.Outfits, 1)
	assert.Equal(t, "1", view.Outfits[0].ID)
	assert.Nil(t, view.UserPhoto)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/sessions/"+view.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/sessions/"+view.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/sessions/"+view.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", errorMessage(t, rec))
}

func TestUploadPhotoAndGarment(t *testing.T) {
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, nil, nil, nil)
	session := createSession(t, e)
	base := "/sessions/" + session.ID

	rec := serve(e, test.NewMultipartRequest(http.MethodPut, base+"/photo", "me.jpg", test.FakeJPEG("me"), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view models.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotNil(t, view.UserPhoto)
	assert.Equal(t, "image/jpeg", view.UserPhoto.MIMEType)
	assert.Equal(t, "me.jpg", view.UserPhoto.Source)

	rec = serve(e, test.NewMultipartRequest(http.MethodPost, base+"/outfits/1/garments", "top.png", test.FakePNG("top"), nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var outfit models.OutfitView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outfit))
	require.Len(t, outfit.Garments, 1)
	assert.Equal(t, "image/png", outfit.Garments[0].MIMEType)

	rec = serve(e, test.NewMultipartRequest(http.MethodPost, base+"/outfits/1/garments", "notes.txt", []byte("plain text"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "unsupported image type")

	rec = serve(e, test.NewMultipartRequest(http.MethodPost, base+"/outfits/9/garments", "top.png", test.FakePNG("top"), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, base+"/outfits/1/garments/0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, base+"/outfits/1/garments/0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, base+"/outfits/1/garments/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, base+"/photo", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Nil(t, view.UserPhoto)
}

func TestOutfitLifecycle(t *testing.T) {
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID

	rec := serve(e, httptest.NewRequest(http.MethodDelete, base+"/outfits/1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodPost, base+"/outfits", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var outfit models.OutfitView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outfit))
	assert.Equal(t, "2", outfit.ID)

	rec = serve(e, test.NewJSONRequest(http.MethodPut, base+"/outfits/2/instructions", UpdateInstructionsIn{Instructions: "a red evening dress"}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outfit))
	assert.Equal(t, "a red evening dress", outfit.Instructions)

	rec = serve(e, test.NewJSONRequest(http.MethodPut, base+"/outfits/2/instructions", UpdateInstructionsIn{Instructions: strings.Repeat("a", 2001)}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, base+"/outfits/2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(e, httptest.NewRequest(http.MethodDelete, base+"/outfits/2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateAndDownload(t *testing.T) {
	generator := &test.TryOnGeneratorMock{}
	e := SetupServer(services.NewSessionStore(), services.NewTryOnOrchestrator(generator, nil, "api"), nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID

	rec := serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing subject photo", errorMessage(t, rec))

	serve(e, test.NewMultipartRequest(http.MethodPut, base+"/photo", "me.jpg", test.FakeJPEG("me"), nil))
	rec = serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no outfit content provided", errorMessage(t, rec))

	serve(e, test.NewMultipartRequest(http.MethodPost, base+"/outfits/1/garments", "top.png", test.FakePNG("top"), nil))
	serve(e, test.NewMultipartRequest(http.MethodPost, base+"/outfits/1/garments", "pants.png", test.FakePNG("pants"), nil))
	serve(e, test.NewJSONRequest(http.MethodPut, base+"/outfits/1/instructions", UpdateInstructionsIn{Instructions: "make it winter-themed"}))
	serve(e, httptest.NewRequest(http.MethodPost, base+"/outfits", nil))

	rec = serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	// outfit 2 is empty and skipped
	require.Len(t, response.Results, 1)
	assert.Equal(t, "1", response.Results[0].OutfitID)
	require.Equal(t, 1, generator.Calls())
	assert.Len(t, generator.Requests[0].Garments, 2)
	assert.Equal(t, "make it winter-themed", generator.Requests[0].Instructions)

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response.Results, 1)
	assert.False(t, response.Generating)

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/results/1/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="stylemorph-outfit-1.png"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, test.FakePNG("render-1"), rec.Body.Bytes())

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/results/2/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGeneratePartialFailure(t *testing.T) {
	generator := &test.TryOnGeneratorMock{}
	generator.GenerateFunc = func(_ context.Context, req models.GenerationRequest) models.GenerationOutcome {
		if req.OutfitID == "2" {
			return services.FailedOutcome(req.OutfitID, errors.New("quota exceeded"))
		}
		return models.GenerationOutcome{OutfitID: req.OutfitID, TextResponse: test.NewRefString("styled")}
	}
	e := SetupServer(services.NewSessionStore(), services.NewTryOnOrchestrator(generator, nil, "api"), nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID

	serve(e, test.NewMultipartRequest(http.MethodPut, base+"/photo", "me.png", test.FakePNG("me"), nil))
	for _, id := range []string{"1", "2", "3"} {
		if id != "1" {
			serve(e, httptest.NewRequest(http.MethodPost, base+"/outfits", nil))
		}
		serve(e, test.NewJSONRequest(http.MethodPut, fmt.Sprintf("%s/outfits/%s/instructions", base, id), UpdateInstructionsIn{Instructions: "look " + id}))
	}

	rec := serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var response ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Results, 3)
	assert.Nil(t, response.Results[0].Error)
	require.NotNil(t, response.Results[1].Error)
	assert.Equal(t, "quota exceeded", *response.Results[1].Error)
	assert.Nil(t, response.Results[2].Error)

	// text-only result has nothing to download
	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/results/1/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateConflictWhileInFlight(t *testing.T) {
	runner := &test.BatchRunnerMock{
		Outcomes: []models.GenerationOutcome{{OutfitID: "1", TextResponse: test.NewRefString("ok")}},
		Started:  make(chan struct{}, 1),
		Release:  make(chan struct{}),
	}
	e := SetupServer(services.NewSessionStore(), runner, nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID
	serve(e, test.NewMultipartRequest(http.MethodPut, base+"/photo", "me.png", test.FakePNG("me"), nil))
	serve(e, test.NewJSONRequest(http.MethodPut, base+"/outfits/1/instructions", UpdateInstructionsIn{Instructions: "casual"}))

	done := make(chan int)
	go func() {
		done <- serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil)).Code
	}()
	<-runner.Started

	rec := serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/results", nil))
	var response ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Generating)

	close(runner.Release)
	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("generate did not return")
	}
}

func TestGenerateBatchFailure(t *testing.T) {
	runner := &test.BatchRunnerMock{Err: fmt.Errorf("%w: outfit 1 panicked", services.ErrBatchFailed)}
	e := SetupServer(services.NewSessionStore(), runner, nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID
	serve(e, test.NewMultipartRequest(http.MethodPut, base+"/photo", "me.png", test.FakePNG("me"), nil))
	serve(e, test.NewJSONRequest(http.MethodPut, base+"/outfits/1/instructions", UpdateInstructionsIn{Instructions: "casual"}))

	rec := serve(e, httptest.NewRequest(http.MethodPost, base+"/generate", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, base, nil))
	var view models.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Generating)
	assert.Contains(t, view.LastError, "batch generation failed")
}

func TestImportClosetGarment(t *testing.T) {
	closet := test.ClosetMock{Assets: map[string]models.ImageAsset{"users/1/jacket.png": test.FakeAsset("jacket")}}
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, closet, nil, nil)
	base := "/sessions/" + createSession(t, e).ID

	rec := serve(e, test.NewJSONRequest(http.MethodPost, base+"/outfits/1/garments/closet", ClosetGarmentIn{ObjectKey: "users/1/jacket.png"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var outfit models.OutfitView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outfit))
	require.Len(t, outfit.Garments, 1)
	assert.Equal(t, "jacket.png", outfit.Garments[0].Source)

	rec = serve(e, test.NewJSONRequest(http.MethodPost, base+"/outfits/1/garments/closet", ClosetGarmentIn{ObjectKey: "users/1/missing.png"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, test.NewJSONRequest(http.MethodPost, base+"/outfits/1/garments/closet", ClosetGarmentIn{ObjectKey: "users/1/jacket.png", MimeType: "image/gif"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, test.NewJSONRequest(http.MethodPost, base+"/outfits/1/garments/closet", ClosetGarmentIn{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportClosetGarmentUnavailable(t *testing.T) {
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID

	rec := serve(e, test.NewJSONRequest(http.MethodPost, base+"/outfits/1/garments/closet", ClosetGarmentIn{ObjectKey: "users/1/jacket.png"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAsyncRoutesWithoutBroker(t *testing.T) {
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, nil, nil, nil)
	base := "/sessions/" + createSession(t, e).ID

	rec := serve(e, httptest.NewRequest(http.MethodPost, base+"/generate/async", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/batches/some-task", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthcheck(t *testing.T) {
	e := SetupServer(services.NewSessionStore(), &test.BatchRunnerMock{}, nil, nil, nil)
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateAsyncEnqueuesBatch(t *testing.T) {
	mr := miniredis.RunT(t)
	redisOpt := asynq.RedisClientOpt{Addr: mr.Addr()}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	asynqInspector := asynq.NewInspector(redisOpt)
	defer asynqInspector.Close()

	runner := &test.BatchRunnerMock{}
	e := SetupServer(services.NewSessionStore(), runner, nil, asynqClient, asynqInspector)
	base := "/sessions/" + createSession(t, e).ID

	rec := serve(e, httptest.NewRequest(http.MethodPost, base+"/generate/async", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing subject photo", errorMessage(t, rec))

	serve(e, test.NewMultipartRequest(http.MethodPut, base+"/photo", "me.png", test.FakePNG("me"), nil))
	serve(e, test.NewJSONRequest(http.MethodPut, base+"/outfits/1/instructions", UpdateInstructionsIn{Instructions: "casual"}))

	rec = serve(e, httptest.NewRequest(http.MethodPost, base+"/generate/async", nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var enqueued BatchEnqueuedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enqueued))
	assert.NotEmpty(t, enqueued.TaskID)
	assert.Equal(t, tasks.QueueGenerate, enqueued.Queue)
	// the API only enqueues
	assert.Equal(t, 0, runner.Calls())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/batches/"+enqueued.TaskID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status BatchStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, enqueued.TaskID, status.TaskID)
	assert.Equal(t, "pending", status.State)
	assert.Nil(t, status.Result)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/batches/unknown-task", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
