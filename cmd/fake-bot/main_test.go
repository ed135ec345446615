package main

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botdesk/internal/client"
)

func TestFakeBot_Echo(t *testing.T) {
	srv := httptest.NewServer(newHandler(0, 0))
	defer srv.Close()

	c := client.New(srv.URL, 5*time.Second, nil)
	data := base64.StdEncoding.EncodeToString(make([]byte, 2048))
	reply, err := c.Chat(t.Context(), client.ChatRequest{
		Message:     "hello there",
		FileContent: &data,
		Product:     "Tea",
	})
	require.NoError(t, err)
	assert.Contains(t, reply, "**You said:** hello there")
	assert.Contains(t, reply, "Your product: Tea")
	assert.Contains(t, reply, "2.0 KiB")
}

func TestFakeBot_List(t *testing.T) {
	srv := httptest.NewServer(newHandler(0, 0))
	defer srv.Close()

	reply, err := client.New(srv.URL, 5*time.Second, nil).Chat(t.Context(), client.ChatRequest{Message: "give me a list"})
	require.NoError(t, err)
	assert.Contains(t, reply, "* First item")
}

func TestFakeBot_Fail(t *testing.T) {
	srv := httptest.NewServer(newHandler(0, http.StatusServiceUnavailable))
	defer srv.Close()

	_, err := client.New(srv.URL, 5*time.Second, nil).Chat(t.Context(), client.ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, client.ErrStatus)

	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestFakeBot_RejectsGet(t *testing.T) {
	srv := httptest.NewServer(newHandler(0, 0))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
