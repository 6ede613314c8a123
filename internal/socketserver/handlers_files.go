package socketserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/state"
)

func (s *Session) handleUpload(ctx context.Context, rest string) Reply {
	s.mode = ModeUpload
	s.stage = stageFilename
	return text(msgFilenamePrompt)
}

// uploadLine advances the filename and size stages. The payload itself is
// read by the driver and arrives through HandlePayload.
func (s *Session) uploadLine(line string) Reply {
	line = strings.TrimSpace(line)

	switch s.stage {
	case stageFilename:
		if err := state.ValidateFilename(line); err != nil {
			s.resetSubprotocol()
			return text(msgInvalidFilename)
		}
		s.uploadName = line
		s.stage = stageSize
		return text(msgSizePrompt)

	case stageSize:
		size, err := strconv.ParseInt(line, 10, 64)
		if err != nil || size < 0 || size > s.limits.MaxUploadBytes {
			s.resetSubprotocol()
			return text(msgInvalidFileSize)
		}
		s.uploadSize = size
		s.stage = stagePayload
		return Reply{
			Text:       fmt.Sprintf(msgPayloadPrompt, size),
			Payload:    true,
			PayloadLen: base64.StdEncoding.EncodedLen(int(size)),
		}
	}

	// A line while the payload is expected means the driver did not honour
	// the payload directive; drop the upload.
	s.resetSubprotocol()
	return text(msgInvalidFileData)
}

// HandlePayload completes an upload with the encoded bytes the driver read.
// readErr is the error that cut the read short, if any.
func (s *Session) HandlePayload(ctx context.Context, encoded []byte, readErr error) Reply {
	if s.mode != ModeUpload || s.stage != stagePayload {
		return text(msgInvalidFileData)
	}
	name, size := s.uploadName, s.uploadSize
	s.resetSubprotocol()

	if readErr != nil {
		log.Warn("upload of %s by %s failed: %v", name, s.username, readErr)
		return text(msgUploadTimedOut)
	}

	data, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil || int64(len(data)) != size {
		return text(msgInvalidFileData)
	}

	if err := s.state.PutFile(name, data); err != nil {
		log.Error("store upload %s: %v", name, err)
		return text(msgInternalError)
	}
	metrics.UploadBytes.Add(float64(size))
	return textf(msgUploaded, name, size)
}

func (s *Session) handleDownload(ctx context.Context, rest string) Reply {
	if rest == "" {
		return text(usageDownload)
	}
	name := rest

	data, err := s.state.ReadFile(name)
	switch {
	case errors.Is(err, state.ErrInvalidFilename):
		return text(msgInvalidFilename)
	case errors.Is(err, state.ErrFileNotFound):
		return text(msgFileNotFound)
	case err != nil:
		log.Error("read %s for download: %v", name, err)
		return text(msgInternalError)
	}
	return textf(msgSending, name, len(data), base64.StdEncoding.EncodeToString(data))
}

func (s *Session) handleFiles(ctx context.Context, rest string) Reply {
	files, err := s.state.ListFiles()
	if err != nil {
		log.Error("list files: %v", err)
		return text(msgInternalError)
	}
	if len(files) == 0 {
		return text(msgNoFiles)
	}

	lines := make([]string, 0, len(files)+1)
	lines = append(lines, fmt.Sprintf("Files (%d):", len(files)))
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("%s  %d bytes  xxh64:%016x", f.Name, f.Size, f.Checksum))
	}
	return text(strings.Join(lines, "\n"))
}
