// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_reply

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal_script "github.com/rapidaai/voice-agent/internal/script"
	internal_tts "github.com/rapidaai/voice-agent/internal/tts"
	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
	"github.com/rapidaai/voice-agent/pkg/utils"
)

const previewChars = 200

// Pipeline turns a finalized transcript into the agent's reply: prompt
// assembly, completion, tool-tag dispatch (knowledge base or developer API),
// then synthesis. It runs as a fire-and-forget task per turn; whatever
// happens, the session must end the turn re-armed or awaiting playback.
type Pipeline struct {
	logger    commons.Logger
	assembler *internal_script.Assembler
	completer internal_type.Completer
	searcher  internal_type.KnowledgeSearcher
	caller    internal_type.ExternalCaller
	tts       *internal_tts.Piper
	tenant    string
}

func NewPipeline(logger commons.Logger, assembler *internal_script.Assembler,
	completer internal_type.Completer, searcher internal_type.KnowledgeSearcher,
	caller internal_type.ExternalCaller, tts *internal_tts.Piper, tenant string) *Pipeline {
	return &Pipeline{
		logger:    logger,
		assembler: assembler,
		completer: completer,
		searcher:  searcher,
		caller:    caller,
		tts:       tts,
		tenant:    tenant,
	}
}

// Respond runs one full reply turn for the finalized segment segIndex.
// The half-duplex gate is already raised by the caller; this method clears
// it on every path that does not end with client playback.
func (p *Pipeline) Respond(ctx context.Context, sender internal_type.FrameSender, session *internal_turn.Session, transcript string, segIndex int) {
	session.AppendHistory(internal_type.RoleUser, transcript)

	reply, kbInfo, apiInfo, err := p.compose(ctx, session)
	if err != nil {
		p.logger.Errorw("reply composition failed", "session", session.SID, "error", err.Error())
		sender.SendFrame(map[string]interface{}{"type": "error", "error": "reply generation failed"})
		session.ClearProcessingFlag()
		return
	}

	session.AppendHistory(internal_type.RoleAssistant, reply)
	turn := session.IncrementTurn()

	frame := map[string]interface{}{
		"type":  "reply",
		"reply": reply,
		"turn":  turn,
	}
	if kbInfo != nil {
		frame["kb"] = kbInfo
	}
	if apiInfo != nil {
		frame["api"] = apiInfo
	}
	if !sender.SendFrame(frame) {
		session.ClearProcessingFlag()
		return
	}

	if !p.synthesize(ctx, sender, session, reply, segIndex) {
		// No audio coming: the client will never send playback_complete.
		session.ClearProcessingFlag()
	}
}

// compose runs the prompt through the model and resolves at most one tool
// tag from the sanitized output.
func (p *Pipeline) compose(ctx context.Context, session *internal_turn.Session) (reply string, kbInfo, apiInfo map[string]interface{}, err error) {
	system, err := p.assembler.SystemPrompt()
	if err != nil {
		return "", nil, nil, fmt.Errorf("assemble prompt: %w", err)
	}

	messages := []internal_type.Message{{Role: internal_type.RoleSystem, Content: system}}
	messages = append(messages, session.TrailingHistory(20)...)

	raw, err := p.completer.Complete(ctx, messages)
	if err != nil {
		return "", nil, nil, err
	}
	reply = internal_script.SanitizeReply(raw)

	if call, ok := internal_script.ParseAPICallTag(reply); ok {
		return p.resolveAPICall(ctx, session, call)
	}
	if query, ok := internal_script.ParseSearchKBTag(reply); ok {
		return p.resolveKBSearch(ctx, session, query)
	}
	return reply, nil, nil, nil
}

func (p *Pipeline) resolveAPICall(ctx context.Context, session *internal_turn.Session, call *internal_script.APICall) (string, map[string]interface{}, map[string]interface{}, error) {
	path := call.Path
	// The model sees paths as the frontend does; the developer API itself is
	// mounted without the /api prefix.
	if strings.HasPrefix(path, "/api/") {
		path = path[len("/api"):]
	}
	p.logger.Infow("api call requested", "session", session.SID, "method", call.Method, "path", path)

	result := p.caller.Call(ctx, call.Method, path, call.Payload)
	resultJSON, _ := json.Marshal(result)
	payloadJSON, _ := json.Marshal(call.Payload)

	format := fmt.Sprintf(
		"The API call was: %s %s. The API returned: %s. "+
			"Formulate a friendly, human response based on the API result.",
		call.Method, path, resultJSON)
	final, err := p.completer.Complete(ctx, []internal_type.Message{
		{Role: internal_type.RoleSystem, Content: format},
		{Role: internal_type.RoleUser, Content: string(payloadJSON)},
	})
	if err != nil {
		return "", nil, nil, err
	}
	apiInfo := map[string]interface{}{
		"method": call.Method,
		"path":   path,
		"result": result,
	}
	return internal_script.SanitizeReply(final), nil, apiInfo, nil
}

func (p *Pipeline) resolveKBSearch(ctx context.Context, session *internal_turn.Session, query string) (string, map[string]interface{}, map[string]interface{}, error) {
	p.logger.Infow("kb search requested", "session", session.SID, "query", query)

	passages, err := p.searcher.Search(ctx, p.tenant, query)
	if err != nil {
		p.logger.Warnw("kb search failed", "session", session.SID, "error", err.Error())
		passages = nil
	}

	var found strings.Builder
	for i, passage := range passages {
		if i > 0 {
			found.WriteString("\n")
		}
		found.WriteString(passage.Content)
	}

	// The second pass must attribute the facts to the knowledge base, never
	// to the user: phrasing like "I found" or "according to our records".
	format := fmt.Sprintf(
		"The user asked: '%s'. The knowledge base found: '%s'. "+
			"Formulate a friendly, human response based on the knowledge base information. "+
			"Attribute the information to the knowledge base, for example 'I found' or "+
			"'according to our records'; never claim the user provided it. "+
			"If the knowledge base found nothing, say: 'I don't have that information yet.'",
		query, found.String())
	final, err := p.completer.Complete(ctx, []internal_type.Message{
		{Role: internal_type.RoleSystem, Content: format},
		{Role: internal_type.RoleUser, Content: query},
	})
	if err != nil {
		return "", nil, nil, err
	}

	sources := make([]map[string]interface{}, 0, len(passages))
	for _, passage := range passages {
		sources = append(sources, map[string]interface{}{
			"source_path": passage.SourcePath,
			"filename":    passage.Filename,
			"score":       fmt.Sprintf("%.4f", passage.Score),
			"preview":     utils.Truncate(passage.Content, previewChars),
		})
	}
	kbInfo := map[string]interface{}{
		"query":   query,
		"sources": sources,
	}
	return internal_script.SanitizeReply(final), kbInfo, nil, nil
}

// synthesize renders the reply to a WAV and announces it. Returns true only
// when audio_ready was delivered, i.e. playback_complete is expected.
func (p *Pipeline) synthesize(ctx context.Context, sender internal_type.FrameSender, session *internal_turn.Session, reply string, segIndex int) bool {
	if p.tts == nil || !p.tts.Configured() || reply == "" {
		return false
	}
	speech := internal_script.CleanTextForTTS(reply)
	if speech == "" {
		return false
	}

	audioFile := fmt.Sprintf("reply_segment_%d.wav", segIndex)
	outPath := filepath.Join(session.Dir, audioFile)
	if err := p.tts.Synthesize(ctx, speech, outPath); err != nil {
		p.logger.Errorw("synthesis failed", "session", session.SID, "error", err.Error())
		return false
	}
	session.SetReplyAudioPath(outPath)

	return sender.SendFrame(map[string]interface{}{
		"type":       "audio_ready",
		"audio_path": fmt.Sprintf("/api/voice/audio/%s?t=%d", session.SID, time.Now().UnixMilli()),
		"audio_file": audioFile,
	})
}
