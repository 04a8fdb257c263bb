package transport

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMessageLineFraming(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"))
	msg, mode, err := ReadMessageWithMode(reader, 1024)
	require.NoError(t, err)
	assert.Equal(t, FramingLine, mode)
	assert.Contains(t, string(msg), "tools/list")
}

func TestReadMessageContentLengthFraming(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	input := "Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body
	reader := bufio.NewReader(strings.NewReader(input))
	msg, mode, err := ReadMessageWithMode(reader, 1024)
	require.NoError(t, err)
	assert.Equal(t, FramingContentLength, mode)
	assert.Equal(t, body, string(msg))
}

func TestWriteMessageLineFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, []byte(`{"ok":true}`), FramingLine))
	assert.Equal(t, "{\"ok\":true}\n", buf.String())
}

func TestWriteMessageContentLengthFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, []byte(`{"ok":true}`), FramingContentLength))
	assert.Equal(t, "Content-Length: 11\r\n\r\n{\"ok\":true}", buf.String())
}

func TestReadMessageEOF(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(""))
	_, _, err := ReadMessageWithMode(reader, 1024)
	assert.Error(t, err)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
