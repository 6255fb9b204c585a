package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentAccessors(t *testing.T) {
	c := Content{
		"title":      "Spring pitch",
		"summary":    "Short recap",
		"category":   "pricing",
		"confidence": 0.8,
	}
	assert.Equal(t, "Spring pitch", c.Title())
	assert.Equal(t, "Short recap", c.Summary())
	assert.Equal(t, "pricing", c.Category())
	assert.Equal(t, 0.8, c.Confidence())
}

func TestContentDefaults(t *testing.T) {
	c := Content{}
	assert.Equal(t, "", c.Title())
	assert.Equal(t, "general", c.Category())
	assert.Equal(t, 0.0, c.Confidence())
}

func TestContentConfidenceClamped(t *testing.T) {
	assert.Equal(t, 1.0, Content{"confidence": 3.0}.Confidence())
	assert.Equal(t, 0.0, Content{"confidence": -1.0}.Confidence())
}

func TestContentTopics(t *testing.T) {
	c := Content{
		"topics": []interface{}{"pricing", "timing", "pricing"},
		"topic":  "exclusivity",
	}
	topics := c.Topics()
	assert.ElementsMatch(t, []string{"pricing", "timing", "exclusivity"}, topics)
}

func TestContentStringValuesSortedByKey(t *testing.T) {
	c := Content{
		"b_second": "two",
		"a_first":  "one",
		"count":    3,
	}
	assert.Equal(t, []string{"one", "two"}, c.StringValues())
}

func TestContentSerializedFallback(t *testing.T) {
	var c Content
	assert.Equal(t, "{}", c.Serialized())
}
