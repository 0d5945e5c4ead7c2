package pd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegionByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pd/api/v1/region/id/42" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RegionInfo{
			RegionID: 42,
			Leader:   Peer{ID: 1, StoreID: 100},
			Peers:    []Peer{{ID: 1, StoreID: 100}, {ID: 2, StoreID: 200}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	info, err := c.RegionByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("RegionByID: %v", err)
	}
	if info.Leader.StoreID != 100 || len(info.Peers) != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestRegionByIDFetchError(t *testing.T) {
	c := New("http://127.0.0.1:0", 50*time.Millisecond)
	_, err := c.RegionByID(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*PdFetchError); !ok {
		t.Fatalf("got %T, want *PdFetchError", err)
	}
}

func TestRegionByIDDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.RegionByID(context.Background(), 1)
	if _, ok := err.(*PdDecodeError); !ok {
		t.Fatalf("got %T, want *PdDecodeError", err)
	}
}

func TestTableRegions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tableRegionsResponse{
			RecordRegions: []RegionInfo{
				{RegionID: 1, Leader: Peer{ID: 1, StoreID: 10}, Peers: []Peer{{ID: 1, StoreID: 10}, {ID: 2, StoreID: 20}}},
				{RegionID: 2, Leader: Peer{ID: 3, StoreID: 20}, Peers: []Peer{{ID: 3, StoreID: 20}}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	regions, err := c.TableRegions(context.Background(), "db1", "t1")
	if err != nil {
		t.Fatalf("TableRegions: %v", err)
	}
	if len(regions) != 2 || regions[0].RegionID != 1 {
		t.Fatalf("unexpected regions: %+v", regions)
	}
}

func TestSubmitOperatorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.SubmitOperator(context.Background(), Operator{Kind: OpTransferLeader, RegionID: 1, To: 2})
	if err != nil {
		t.Fatalf("SubmitOperator: %v", err)
	}
}

func TestSubmitOperatorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`Fail to schedule operator`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.SubmitOperator(context.Background(), Operator{Kind: OpTransferLeader, RegionID: 1, To: 2})
	if err == nil {
		t.Fatal("expected rejection error")
	}
}
