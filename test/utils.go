package test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"stylemorphapi/models"
	"stylemorphapi/services"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

// NewMultipartRequest uploads data as the "file" form field plus any extra fields.
func NewMultipartRequest(method string, target string, fileName string, data []byte, fields map[string]string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", fileName)
	part.Write(data)
	for key, value := range fields {
		writer.WriteField(key, value)
	}
	writer.Close()

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func NewRefString(data string) *string {
	return &data
}

// FakePNG returns bytes that sniff as image/png.
func FakePNG(tag string) []byte {
	return append([]byte("\x89PNG\x0D\x0A\x1A\x0A"), []byte(tag)...)
}

// FakeJPEG returns bytes that sniff as image/jpeg.
func FakeJPEG(tag string) []byte {
	return append([]byte("\xFF\xD8\xFF\xE0"), []byte(tag)...)
}

func FakeAsset(tag string) models.ImageAsset {
	return models.NewImageAsset(FakePNG(tag), "image/png", tag+".png")
}

func FakeImageURL(data []byte) string {
	return services.TryOnImageDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}

// TryOnGeneratorMock answers every request with an image unless GenerateFunc is set.
type TryOnGeneratorMock struct {
	GenerateFunc func(ctx context.Context, req models.GenerationRequest) models.GenerationOutcome

	mu       sync.Mutex
	Requests []models.GenerationRequest
}

func (m *TryOnGeneratorMock) Generate(ctx context.Context, req models.GenerationRequest) models.GenerationOutcome {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.GenerationOutcome{
		OutfitID: req.OutfitID,
		ImageURL: NewRefString(FakeImageURL(FakePNG("render-" + req.OutfitID))),
	}
}

func (m *TryOnGeneratorMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// BatchRunnerMock returns fixed outcomes, or blocks on Release when it is set.
type BatchRunnerMock struct {
	Outcomes []models.GenerationOutcome
	Err      error
	Started  chan struct{}
	Release  chan struct{}

	calls atomic.Int32
}

func (m *BatchRunnerMock) RunBatch(ctx context.Context, userPhoto *models.ImageAsset, outfits []models.OutfitSpec) ([]models.GenerationOutcome, error) {
	m.calls.Add(1)
	if err := services.ValidateTryOnBatch(userPhoto, outfits); err != nil {
		return nil, err
	}
	if m.Started != nil {
		m.Started <- struct{}{}
	}
	if m.Release != nil {
		<-m.Release
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Outcomes, nil
}

func (m *BatchRunnerMock) Calls() int {
	return int(m.calls.Load())
}

type AWSProviderMock struct {
	MockUrl string
	Data    []byte

	presignCalls atomic.Int32
}

func (awsService *AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	awsService.presignCalls.Add(1)
	if awsService.MockUrl != "" {
		return awsService.MockUrl, nil
	}
	return fmt.Sprintf("https://fakebucketurl.com/%s/%s", bucketName, fileKey), nil
}

func (awsService *AWSProviderMock) DownloadObject(ctx context.Context, url string) ([]byte, error) {
	if awsService.Data == nil {
		return services.ReadFileFromUrl(ctx, url)
	}
	return awsService.Data, nil
}

func (awsService *AWSProviderMock) PresignCalls() int {
	return int(awsService.presignCalls.Load())
}

type ClosetMock struct {
	Assets map[string]models.ImageAsset
}

func (m ClosetMock) FetchGarment(ctx context.Context, objectKey string, mimeOverride string) (models.ImageAsset, error) {
	asset, ok := m.Assets[objectKey]
	if !ok {
		return models.ImageAsset{}, fmt.Errorf("failed to download closet object %s", objectKey)
	}
	return asset, nil
}
