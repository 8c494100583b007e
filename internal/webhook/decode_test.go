package webhook

import (
	"reflect"
	"testing"

	"server/internal/domain"
)

func TestDecodePredictionWithOutputList(t *testing.T) {
	body := []byte(`{"id":"pred-1","status":"succeeded","output":["https://cdn/a.png","https://cdn/b.png"],"error":null}`)

	ev, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Class != ClassPrediction {
		t.Fatalf("class = %d, want prediction", ev.Class)
	}
	job, ok := ev.JobEvent()
	if !ok {
		t.Fatalf("status %q did not map", ev.Status)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s", job.Status)
	}
	want := []string{"https://cdn/a.png", "https://cdn/b.png"}
	if !reflect.DeepEqual(job.Outputs, want) {
		t.Fatalf("outputs = %#v, want %#v", job.Outputs, want)
	}
}

func TestDecodePredictionWithSingleOutput(t *testing.T) {
	body := []byte(`{"id":"pred-2","status":"processing","output":"https://cdn/only.png"}`)

	ev, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Class != ClassPrediction {
		t.Fatalf("class = %d, want prediction", ev.Class)
	}
	if got := ev.Outputs(); !reflect.DeepEqual(got, []string{"https://cdn/only.png"}) {
		t.Fatalf("outputs = %#v", got)
	}
}

func TestDecodeTrainingShapedPayload(t *testing.T) {
	body := []byte(`{"id":"train-1","status":"succeeded","output":{"version":"owner/model:v2","weights":"https://cdn/weights.tar"}}`)

	ev, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Class != ClassTraining {
		t.Fatalf("class = %d, want training", ev.Class)
	}
	want := []string{"owner/model:v2", "https://cdn/weights.tar"}
	if got := ev.Outputs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("outputs = %#v, want %#v", got, want)
	}
}

func TestDecodeHeartbeatIsUnrecognized(t *testing.T) {
	body := []byte(`{"id":"pred-3","status":"starting","output":null}`)

	ev, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Class != ClassUnrecognized {
		t.Fatalf("class = %d, want unrecognized", ev.Class)
	}
	job, ok := ev.JobEvent()
	if !ok || job.Status != domain.JobStatusProcessing {
		t.Fatalf("heartbeat mapping = %+v ok=%v", job, ok)
	}
	if len(job.Outputs) != 0 {
		t.Fatalf("heartbeat produced outputs: %#v", job.Outputs)
	}
}

func TestDecodeStatusVocabulary(t *testing.T) {
	cases := map[string]domain.JobStatus{
		"queued":     domain.JobStatusProcessing,
		"starting":   domain.JobStatusProcessing,
		"processing": domain.JobStatusProcessing,
		"succeeded":  domain.JobStatusSucceeded,
		"completed":  domain.JobStatusSucceeded,
		"failed":     domain.JobStatusFailed,
		"canceled":   domain.JobStatusCanceled,
		"cancelled":  domain.JobStatusCanceled,
	}
	for provider, want := range cases {
		ev := &Event{Status: provider}
		got, ok := ev.JobStatus()
		if !ok || got != want {
			t.Fatalf("status %q mapped to (%s, %v), want %s", provider, got, ok, want)
		}
	}
	if _, ok := (&Event{Status: "paused"}).JobStatus(); ok {
		t.Fatalf("unknown provider status mapped")
	}
}

func TestDecodeErrorVariants(t *testing.T) {
	withString := []byte(`{"id":"pred-4","status":"failed","error":"CUDA out of memory"}`)
	ev, err := Decode(withString)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Error != "CUDA out of memory" {
		t.Fatalf("error = %q", ev.Error)
	}

	withNull := []byte(`{"id":"pred-5","status":"succeeded","error":null}`)
	ev, err = Decode(withNull)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Error != "" {
		t.Fatalf("null error decoded as %q", ev.Error)
	}
}

func TestDecodeRejectsPayloadWithoutID(t *testing.T) {
	if _, err := Decode([]byte(`{"status":"succeeded"}`)); err == nil {
		t.Fatalf("payload without id accepted")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("malformed payload accepted")
	}
}
