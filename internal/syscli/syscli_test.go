package syscli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"nope"}, &buf)
	assert.Equal(t, 1, rc)
	assert.Contains(t, buf.String(), "unknown command")
}

func TestRunNoArgsUsage(t *testing.T) {
	var buf bytes.Buffer
	rc := Run(nil, &buf)
	assert.Equal(t, 1, rc)
	assert.Contains(t, buf.String(), "usage:")
}

func TestRunInfoText(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"info"}, &buf)
	assert.Equal(t, 0, rc)
	assert.Contains(t, buf.String(), "host:")
}

func TestRunInfoJSON(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"info", "--json"}, &buf)
	assert.Equal(t, 0, rc)

	var data map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Contains(t, data, "hostname")
	assert.NotContains(t, data, "kernelVersion", "extended fields should be absent without --extended")
}

func TestRunInfoExtendedJSON(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"info", "--extended", "--json"}, &buf)
	assert.Equal(t, 0, rc)

	var data map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Contains(t, data, "kernelVersion")
}

func TestRunMemoryJSON(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"memory", "--json"}, &buf)
	assert.Equal(t, 0, rc)

	var data map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Contains(t, data, "usedPercent")
}

func TestRunPaths(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"paths", "--json"}, &buf)
	assert.Equal(t, 0, rc)

	var data map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Contains(t, data, "cwd")
	assert.Contains(t, data, "executable")
}

func TestRunBatteryUnavailableDoesNotFail(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"battery", "--json"}, &buf)
	assert.Equal(t, 0, rc, "battery absence is reported, not an invocation error")
}

func TestRunQuick(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"quick", "--json"}, &buf)
	assert.Equal(t, 0, rc)

	var data map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Contains(t, data, "hostname")
}

func TestRunBadFlagIsInvocationError(t *testing.T) {
	var buf bytes.Buffer
	rc := Run([]string{"cpu", "--not-a-flag"}, &buf)
	assert.Equal(t, 1, rc)
}
