package discovery

import (
	"testing"
	"time"

	"github.com/fleetdispatch/cluster/internal/model"
)

func TestNegotiate_NoPrimaryListening(t *testing.T) {
	role := Negotiate("tcp://127.0.0.1:59123", 200*time.Millisecond)
	if role != model.RolePrimary {
		t.Fatalf("role = %v, want primary when nothing answers", role)
	}
}
