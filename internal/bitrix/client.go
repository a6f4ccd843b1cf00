package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"taskbot/internal/models"
)

var (
	// ErrNoAttachmentID is returned when an upload response carries no usable id
	ErrNoAttachmentID = errors.New("no attachment id in response")
	// ErrTaskNotCreated is returned when the task-create call does not succeed
	ErrTaskNotCreated = errors.New("task was not created")
)

// UploadMode selects the disk upload protocol
type UploadMode string

const (
	// UploadDirect posts the file and the folder id in one multipart request
	UploadDirect UploadMode = "direct"
	// UploadTwoStep first asks for an uploadUrl, then posts the file there
	UploadTwoStep UploadMode = "two_step"
)

// DeadlineLayout is the wire format of the DEADLINE field
const DeadlineLayout = "2006-01-02T15:04:05"

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 1 << 20

// attachmentIDPaths are tried in order when reading an upload response
var attachmentIDPaths = []string{
	"result.ATTACHED_OBJECT.ID",
	"result.attachedId",
	"result.ID",
}

// Config configures a Client
type Config struct {
	WebhookURL    string
	FolderID      int64
	Mode          UploadMode
	UploadMethod  string
	TaskMethod    string
	CreatedBy     int64
	UploadTimeout time.Duration
	TaskTimeout   time.Duration
}

// Client talks to a Bitrix24 inbound webhook
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Bitrix24 webhook client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("bitrix webhook url is required")
	}
	if cfg.FolderID <= 0 {
		return nil, fmt.Errorf("bitrix folder id is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = UploadDirect
	case UploadDirect, UploadTwoStep:
	default:
		return nil, fmt.Errorf("unknown upload mode %q", cfg.Mode)
	}
	if cfg.UploadMethod == "" {
		cfg.UploadMethod = "disk.folder.uploadfile"
	}
	if cfg.TaskMethod == "" {
		cfg.TaskMethod = "tasks.task.add"
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}

	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.WebhookURL, "/") + "/",
		httpClient: &http.Client{},
		logger:     logger.Named("bitrix"),
	}, nil
}

// buildAPIURL constructs the REST URL for a method
func (c *Client) buildAPIURL(method string) string {
	return c.baseURL + strings.TrimSuffix(method, ".json") + ".json"
}

// UploadFile stores a file in the configured disk folder and returns its attachment id.
// Retrying after a failure may leave a duplicate file on the disk.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	var (
		body []byte
		err  error
	)
	switch c.cfg.Mode {
	case UploadTwoStep:
		body, err = c.uploadTwoStep(ctx, name, r)
	default:
		fields := map[string]string{"id": strconv.FormatInt(c.cfg.FolderID, 10)}
		body, err = c.postMultipart(ctx, c.buildAPIURL(c.cfg.UploadMethod), fields, "file", name, r)
	}
	if err != nil {
		return 0, err
	}

	id, ok := ExtractAttachmentID(body)
	if !ok {
		c.logger.Error("No attachment id in upload response",
			zap.String("file", name),
			zap.ByteString("body", body),
		)
		return 0, ErrNoAttachmentID
	}

	c.logger.Info("File uploaded", zap.String("file", name), zap.Int64("attachment_id", id))
	return id, nil
}

func (c *Client) uploadTwoStep(ctx context.Context, name string, r io.Reader) ([]byte, error) {
	form := url.Values{}
	form.Set("id", strconv.FormatInt(c.cfg.FolderID, 10))
	form.Set("data[NAME]", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildAPIURL(c.cfg.UploadMethod), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	uploadURL := gjson.GetBytes(body, "result.uploadUrl").String()
	if uploadURL == "" {
		c.logger.Error("No uploadUrl in response", zap.String("file", name), zap.ByteString("body", body))
		return nil, ErrNoAttachmentID
	}
	field := gjson.GetBytes(body, "result.field").String()
	if field == "" {
		field = "file"
	}

	return c.postMultipart(ctx, uploadURL, nil, field, name, r)
}

// postMultipart streams fields and one file part to target
func (c *Client) postMultipart(ctx context.Context, target string, fields map[string]string, fileField, name string, r io.Reader) ([]byte, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeMultipart(mw, fields, fileField, name, r))
	}()
	// the writer must be finished with r before the caller closes it
	defer func() {
		pr.CloseWithError(io.ErrClosedPipe)
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, fileField, name string, r io.Reader) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(fileField, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// do sends req and returns the body of a 200 response
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bitrix request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Bitrix API error",
			zap.String("url", redact(req.URL)),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("bitrix API error (status %d)", resp.StatusCode)
	}
	return body, nil
}

// ExtractAttachmentID reads the attachment id from any known upload response shape
func ExtractAttachmentID(body []byte) (int64, bool) {
	if !gjson.ValidBytes(body) {
		return 0, false
	}
	for _, path := range attachmentIDPaths {
		v := gjson.GetBytes(body, path)
		if !v.Exists() {
			continue
		}
		if id, ok := positiveInt(v); ok {
			return id, true
		}
	}
	return 0, false
}

func positiveInt(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num == float64(int64(v.Num)) && v.Num > 0 {
			return int64(v.Num), true
		}
	case gjson.String:
		id, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

type taskFields struct {
	Title         string  `json:"TITLE"`
	Description   string  `json:"DESCRIPTION"`
	ResponsibleID int64   `json:"RESPONSIBLE_ID"`
	CreatedBy     int64   `json:"CREATED_BY,omitempty"`
	Deadline      string  `json:"DEADLINE"`
	Files         []int64 `json:"UF_TASK_WEBDAV_FILES,omitempty"`
}

type taskRequest struct {
	Fields taskFields `json:"fields"`
}

// CreateTask posts a task and returns the task id reported by Bitrix24, if any
func (c *Client) CreateTask(ctx context.Context, task models.Task) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TaskTimeout)
	defer cancel()

	createdBy := task.CreatedBy
	if createdBy == 0 {
		createdBy = c.cfg.CreatedBy
	}

	payload, err := json.Marshal(taskRequest{Fields: taskFields{
		Title:         task.Title,
		Description:   task.Description,
		ResponsibleID: task.ResponsibleID,
		CreatedBy:     createdBy,
		Deadline:      task.Deadline.Format(DeadlineLayout),
		Files:         task.AttachmentIDs,
	}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildAPIURL(c.cfg.TaskMethod), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTaskNotCreated, err)
	}

	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		c.logger.Error("No result in task response", zap.ByteString("body", body))
		return "", ErrTaskNotCreated
	}

	taskID := gjson.GetBytes(body, "result.task.id").String()
	if taskID == "" && (result.Type == gjson.Number || result.Type == gjson.String) {
		taskID = result.String()
	}

	c.logger.Info("Task created",
		zap.String("task_id", taskID),
		zap.Int64("responsible_id", task.ResponsibleID),
		zap.Int("attachments", len(task.AttachmentIDs)),
	)
	return taskID, nil
}

// redact hides the webhook token in logged URLs
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/***"
}
