// Package live implements the session orchestration loop for real-time
// code-mixed voice conversations.
//
// A Session owns one conversation: it segments incoming microphone audio
// into utterances, transcribes them, runs language detection and the
// dialogue policy, and streams synthesized speech back out, while keeping
// an append-only turn history and the session's working language profile.
//
// # Data Flow
//
//	Audio In → Segmenter → Transcriber → Detector → Responder → Synthesizer → Sink
//	                             │            │          │
//	                             └── history + language profile (hysteresis)
//
// # State Machine
//
// The session progresses through these states:
//
//	IDLE → LISTENING → THINKING → SPEAKING
//	           ↑___________│__________│        (loop, barge-in)
//	                    ENDED                  (stop, idle timeout, device failure)
//
// A new utterance committed while the session is THINKING or SPEAKING is a
// barge-in: the in-flight turn is cancelled, pending playback is flushed,
// and the new utterance takes priority.
//
// # Usage
//
//	cfg := live.DefaultSessionConfig()
//	sess, err := live.NewSession(cfg, live.Deps{
//	    Transcriber: sttProvider,
//	    Detector:    detector,
//	    Responder:   policy,
//	    Synthesizer: ttsProvider,
//	    Sink:        speaker,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := sess.Start(ctx); err != nil {
//	    return err
//	}
//
//	go func() {
//	    for frame := range mic {
//	        sess.PushAudio(frame)
//	    }
//	    sess.EndInput()
//	}()
//
//	for event := range sess.Events() {
//	    switch e := event.(type) {
//	    case *live.TranscriptEvent:
//	        fmt.Println("User said:", e.Text)
//	    case *live.TurnCommittedEvent:
//	        fmt.Println(e.Turn.Speaker, e.Turn.Text)
//	    }
//	}
//
// All remote clients are injected interfaces, so the whole loop runs
// against deterministic stubs in tests.
package live
