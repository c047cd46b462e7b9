package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewAnalysis struct {
	Sentiment  string            `json:"sentiment" schema:"required,enum=positive|negative|neutral"`
	Confidence float64           `json:"confidence" schema:"required,min=0,max=1"`
	Keywords   []string          `json:"keywords" schema:"default=[]"`
	Rating     int               `json:"rating" schema:"min=1,max=5"`
	Summary    string            `json:"summary" schema:"required,maxLength=200,description=one sentence, no more"`
	Meta       map[string]string `json:"meta,omitempty"`
	Author     *reviewAuthor     `json:"author"`
	Internal   string            `json:"-"`
	hidden     string
}

type reviewAuthor struct {
	Name string `json:"name" schema:"required,minLength=1"`
}

type treeNode struct {
	Value    int         `json:"value"`
	Children []*treeNode `json:"children"`
}

func TestFor_StructTags(t *testing.T) {
	s, err := For[reviewAnalysis]()
	require.NoError(t, err)
	require.NoError(t, s.Check())

	assert.Equal(t, TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"sentiment", "confidence", "summary"}, s.Required)
	assert.Equal(t, []string{"positive", "negative", "neutral"}, s.Properties["sentiment"].Enum)
	assert.Equal(t, 1.0, *s.Properties["confidence"].Maximum)
	assert.Equal(t, []any{}, s.Properties["keywords"].Default)
	assert.Equal(t, TypeInteger, s.Properties["rating"].Type)
	assert.Equal(t, "one sentence, no more", s.Properties["summary"].Description)
	assert.Equal(t, 200, *s.Properties["summary"].MaxLength)
	assert.True(t, *s.Properties["meta"].AdditionalProperties)
	assert.True(t, s.Properties["author"].IsRequired("name"))
	assert.NotContains(t, s.Properties, "Internal")
	assert.NotContains(t, s.Properties, "hidden")
}

func TestFor_ValidatesAndDecodes(t *testing.T) {
	s, err := For[reviewAnalysis]()
	require.NoError(t, err)

	res, err := NewValidator().Validate(`{"sentiment":"positive","confidence":0.8,"summary":"ok","rating":4,"author":{"name":"kim"}}`, s)
	require.NoError(t, err)

	out, err := As[reviewAnalysis](res)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Rating)
	assert.Equal(t, []string{}, out.Keywords)
	assert.Equal(t, "kim", out.Author.Name)
}

func TestFromType_Recursive(t *testing.T) {
	s, err := FromType(reflect.TypeOf(treeNode{}))
	require.NoError(t, err)
	children := s.Properties["children"]
	require.NotNil(t, children.Items)
	assert.Equal(t, TypeObject, children.Items.Type)
	assert.Empty(t, children.Items.Properties)
}

func TestFromType_Errors(t *testing.T) {
	_, err := FromType(nil)
	assert.Error(t, err)

	_, err = FromType(reflect.TypeOf(make(chan int)))
	assert.Error(t, err)

	_, err = FromType(reflect.TypeOf(map[int]string{}))
	assert.Error(t, err)

	type badEnum struct {
		N int `json:"n" schema:"enum=a|b"`
	}
	_, err = For[badEnum]()
	assert.Error(t, err)

	type badOption struct {
		S string `json:"s" schema:"multipleOf=2"`
	}
	_, err = For[badOption]()
	assert.Error(t, err)

	type badPattern struct {
		S string `json:"s" schema:"pattern=(["`
	}
	_, err = For[badPattern]()
	assert.ErrorContains(t, err, "invalid pattern")

	type formatOnNumber struct {
		N float64 `json:"n" schema:"format=date"`
	}
	_, err = For[formatOnNumber]()
	assert.Error(t, err)
}

func TestFor_PatternFormatAndTime(t *testing.T) {
	type booking struct {
		Code    string    `json:"code" schema:"required,pattern=^[A-Z]{3}-[0-9]+$"`
		Email   string    `json:"email" schema:"format=email"`
		Created time.Time `json:"created" schema:"required"`
	}
	s, err := For[booking]()
	require.NoError(t, err)
	assert.Equal(t, "^[A-Z]{3}-[0-9]+$", s.Properties["code"].Pattern)
	assert.Equal(t, FormatEmail, s.Properties["email"].Format)
	assert.Equal(t, FormatDateTime, s.Properties["created"].Format)

	v := NewValidator()
	res, err := v.Validate(`{"code":"ABC-12","email":"a@b.io","created":"2024-05-01T10:00:00Z"}`, s)
	require.NoError(t, err)
	out, err := As[booking](res)
	require.NoError(t, err)
	assert.Equal(t, 2024, out.Created.Year())

	_, err = v.Validate(`{"code":"abc","created":"yesterday"}`, s)
	verr := requireValidationError(t, err)
	assert.ElementsMatch(t, []string{"code", "created"}, verr.Paths())
}
