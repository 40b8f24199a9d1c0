package chat

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxSize = 10 * 1024 * 1024

type recorder struct {
	events   []string
	payloads []any
}

func (r *recorder) Send(event string, payload any) error {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestSendTextEmitsOneEvent(t *testing.T) {
	rec := &recorder{}
	relay := NewRelay("alice", rec, maxSize)

	require.NoError(t, relay.SendText("r1", "hi"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, protocol.EventSendMessage, rec.events[0])
	assert.Equal(t, protocol.SendMessage{RoomID: "r1", UserID: "alice", Message: "hi", Type: protocol.KindText}, rec.payloads[0])

	assert.ErrorIs(t, relay.SendText("r1", "   "), ErrEmptyMessage)
	assert.Len(t, rec.events, 1)
}

func TestSendFileRejectsOversized(t *testing.T) {
	rec := &recorder{}
	relay := NewRelay("alice", rec, maxSize)

	big := &Attachment{Name: "big.bin", Data: make([]byte, maxSize+1)}
	assert.ErrorIs(t, relay.SendFile("r1", big), ErrFileTooLarge)
	assert.Empty(t, rec.events)

	exact := &Attachment{Name: "exact.bin", Data: make([]byte, maxSize)}
	assert.NoError(t, relay.SendFile("r1", exact))
	assert.Len(t, rec.events, 1)
}

func TestSendFileEncodesPayload(t *testing.T) {
	rec := &recorder{}
	relay := NewRelay("alice", rec, maxSize)

	require.NoError(t, relay.SendFile("r1", &Attachment{Name: "notes.txt", Data: []byte("hello")}))

	msg := rec.payloads[0].(protocol.SendMessage)
	assert.Equal(t, protocol.KindFile, msg.Type)
	assert.Equal(t, "notes.txt", msg.Message)
	require.NotNil(t, msg.FileData)
	assert.EqualValues(t, 5, msg.FileData.FileSize)
	assert.Contains(t, msg.FileData.FileType, "text/plain")
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), msg.FileData.Data)
}

func TestReceiveBuildsMessage(t *testing.T) {
	relay := NewRelay("alice", &recorder{}, maxSize)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ev := &protocol.NewMessage{RoomID: "r1", UserID: "alice", Message: "hi", Type: protocol.KindText, Timestamp: ts.Format(time.RFC3339Nano)}
	first, err := relay.Receive("r1", ev)
	require.NoError(t, err)
	second, err := relay.Receive("r1", ev)
	require.NoError(t, err)

	assert.True(t, first.Mine)
	assert.Equal(t, KindText, first.Kind)
	assert.True(t, ts.Equal(first.Timestamp))
	assert.NotEqual(t, first.ID, second.ID)

	_, err = relay.Receive("r2", ev)
	assert.ErrorIs(t, err, ErrForeignRoom)
}

func TestReceiveDowngradesUnknownKinds(t *testing.T) {
	relay := NewRelay("alice", &recorder{}, maxSize)

	for _, kind := range []string{protocol.KindSystem, "", "banner"} {
		msg, err := relay.Receive("r1", &protocol.NewMessage{RoomID: "r1", UserID: "bob", Message: "Bob is admin now", Type: kind})
		require.NoError(t, err)
		assert.Equal(t, KindText, msg.Kind, kind)
	}
}

func TestReceiveDecodesAttachment(t *testing.T) {
	relay := NewRelay("alice", &recorder{}, maxSize)

	msg, err := relay.Receive("r1", &protocol.NewMessage{
		RoomID: "r1", UserID: "bob", Message: "a.txt", Type: protocol.KindFile,
		FileData: &protocol.FileData{FileName: "a.txt", FileType: "text/plain", FileSize: 3, Data: "YWJj"},
	})
	require.NoError(t, err)
	assert.False(t, msg.Mine)
	assert.Equal(t, KindFile, msg.Kind)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, []byte("abc"), msg.Attachment.Data)

	_, err = relay.Receive("r1", &protocol.NewMessage{
		RoomID: "r1", UserID: "bob", Type: protocol.KindFile,
		FileData: &protocol.FileData{FileName: "bad", Data: "!!!"},
	})
	assert.Error(t, err)
}

func TestLoadAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	a, err := LoadAttachment(path, maxSize)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", a.Name)
	assert.Equal(t, "image/png", a.Type)
	assert.EqualValues(t, 3, a.Size)

	_, err = LoadAttachment(path, 2)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = LoadAttachment(filepath.Join(dir, "missing"), maxSize)
	assert.Error(t, err)

	_, err = LoadAttachment(dir, maxSize)
	assert.Error(t, err)
}

func TestAttachmentSaveKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	a := &Attachment{Name: "report.pdf", Data: []byte("one")}

	first, err := a.Save(dir)
	require.NoError(t, err)
	second, err := a.Save(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "report.pdf"), first)
	assert.Equal(t, filepath.Join(dir, "report (1).pdf"), second)
}

func TestTimeline(t *testing.T) {
	var tl Timeline
	tl.Append(NewSystemMessage("r1", "Bob joined the room"))
	tl.Append(Message{ID: "2", Text: "hi"})

	msgs := tl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindSystem, msgs[0].Kind)

	msgs[1].Text = "changed"
	assert.Equal(t, "hi", tl.Messages()[1].Text)

	tl.Clear()
	assert.Zero(t, tl.Len())
}
