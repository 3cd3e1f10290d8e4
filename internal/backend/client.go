package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/model"
)

var (
	// ErrUnauthorized means the backend rejected the bearer token (HTTP 401)
	// or no usable token is stored. The user has to sign in again.
	ErrUnauthorized = errors.New("backend session expired")
	// ErrServiceUnavailable wraps transport failures and timeouts. Retryable.
	ErrServiceUnavailable = errors.New("backend unavailable")
	// ErrQuizNotFound is returned when a course does not list the quiz or it has no questions.
	ErrQuizNotFound = errors.New("quiz not found or has no questions")
)

// APIError is a non-2xx reply other than 401.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// TokenSource yields the bearer token for backend calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the remote LMS REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        zerolog.Logger
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewClient creates a backend client. A nil httpClient gets one with the
// given timeout; on timeout a request fails with ErrServiceUnavailable.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client, tokens TokenSource, log zerolog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:5000"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		log:        logger.Component(log, "backend_client"),
	}
}

// ListCourseQuizzes returns every quiz of a course, questions included.
func (c *Client) ListCourseQuizzes(ctx context.Context, courseID string) ([]model.Quiz, error) {
	var payload model.CourseQuizzesResponse
	path := "/api/course/" + url.PathEscape(courseID) + "/quizzes"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: firstNonEmpty(payload.Message, "backend reported failure")}
	}
	return payload.Quizzes, nil
}

// FindQuiz looks one quiz up in the course listing. Used when the caller did
// not hand the questions over.
func (c *Client) FindQuiz(ctx context.Context, courseID, quizID string) (*model.Quiz, error) {
	quizzes, err := c.ListCourseQuizzes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	for i := range quizzes {
		if quizzes[i].ID.String() == quizID && len(quizzes[i].Questions) > 0 {
			return &quizzes[i], nil
		}
	}
	return nil, ErrQuizNotFound
}

// SubmitQuiz posts a student submission.
func (c *Client) SubmitQuiz(ctx context.Context, sub model.QuizSubmission) (*model.SubmitResult, error) {
	var result model.SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/quiz/submit", sub, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitAnswerKey posts an admin's answer key. Any 2xx reply counts as success.
func (c *Client) SubmitAnswerKey(ctx context.Context, courseID, quizID string, sub model.AnswerKeySubmission) (*model.SubmitResult, error) {
	path := fmt.Sprintf("/api/admin/course/%s/quiz/%s/answer", url.PathEscape(courseID), url.PathEscape(quizID))
	var result model.SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, path, sub, &result); err != nil {
		return nil, err
	}
	result.Success = true
	return &result, nil
}

// GetAnswerKey loads a previously submitted answer key.
func (c *Client) GetAnswerKey(ctx context.Context, courseID, quizID string) ([]model.Answer, error) {
	path := fmt.Sprintf("/api/admin/course/%s/quiz/%s/answers", url.PathEscape(courseID), url.PathEscape(quizID))
	var payload model.AnswerKeyResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, nil
	}
	return payload.Answers, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("Backend request failed")
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", response.StatusCode).
		Dur("took", time.Since(started)).
		Msg("Backend request")

	if response.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil {
			apiErr.Message = firstNonEmpty(payload.Message, payload.Error)
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return &apiErr
	}

	if responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// IsRetryable reports whether a failed call may succeed when repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
