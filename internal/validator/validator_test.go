package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openPayload struct {
	QuizID   string `json:"quiz_id" binding:"required,storage_id"`
	CourseID string `json:"course_id" binding:"required,storage_id"`
}

func bindBody(t *testing.T, body string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var dst openPayload
	return Bind(c, &dst)
}

func TestBindAcceptsValidIDs(t *testing.T) {
	assert.Nil(t, bindBody(t, `{"quiz_id":"7","course_id":"c-12"}`))
}

func TestBindReportsJSONFieldNames(t *testing.T) {
	fields := bindBody(t, `{"quiz_id":"quiz_7"}`)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "quiz_id")
	assert.Contains(t, fields["quiz_id"], "letters, digits and dashes")
	assert.Contains(t, fields, "course_id")
}

func TestBindSyntaxError(t *testing.T) {
	fields := bindBody(t, `{"quiz_id":`)
	assert.Contains(t, fields, "detail")
}

func TestParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Setup()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "course_id", Value: "3"}, {Key: "quiz_id", Value: "7_x"}}

	fields := Params(c, "required,storage_id", "course_id", "quiz_id")
	require.Len(t, fields, 1)
	assert.Contains(t, fields, "quiz_id")
}
