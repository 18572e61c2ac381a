package audio_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/lingualive/pkg/audio"
)

func TestStreamState_FirstFinishWins(t *testing.T) {
	s := audio.NewStreamState()
	select {
	case <-s.Done():
		t.Fatal("Done closed before Finish")
	default:
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v before Finish, want nil", s.Err())
	}

	lost := errors.New("unplugged")
	s.Finish(lost)
	s.Finish(nil)

	<-s.Done()
	if !errors.Is(s.Err(), lost) {
		t.Errorf("Err() = %v, want %v", s.Err(), lost)
	}
}
