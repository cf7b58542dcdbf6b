package consumer

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voto-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const infoJSON = `{"table":{
  "columnNames":["Row Type","Variable Name","Attribute Name","Data Type","Value"],
  "rows":[
    ["attribute","NC_GLOBAL","platform_serial","String","SB2120"],
    ["attribute","NC_GLOBAL","deployment_id","int","7"],
    ["variable","time","","double",""],
    ["variable","Leak","","float",""],
    ["variable","Warning","","float",""]
  ]}}`

const dataJSON = `{"table":{
  "columnNames":["time","Leak","Warning"],
  "rows":[
    ["2024-06-10T09:00:00Z",0,0],
    ["2024-06-10T10:00:00Z",null,1],
    ["bad",1,1]
  ]}}`

func TestERDDAPSource_Fetch(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/erddap/info/sb2120_m7/index.json":
			w.Write([]byte(infoJSON))
		case r.URL.Path == "/erddap/tabledap/sb2120_m7.json":
			query = r.URL.RawQuery
			w.Write([]byte(dataJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	src := NewERDDAPSource(server.URL+"/erddap", 5*time.Second, 72*time.Hour, zap.NewNop())
	src.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }

	ds, err := src.Fetch(context.Background(), "sb2120_m7")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "time,Leak,Warning&time%3E=2024-06-07T12:00:00Z"), query)
	assert.Equal(t, "SB2120", ds.PlatformSerial)
	assert.Equal(t, 7, ds.DeploymentID)
	require.Len(t, ds.Times, 2)
	assert.Equal(t, []float64{0, 1}, ds.Series["Warning"])
	assert.True(t, math.IsNaN(ds.Series["Leak"][1]))
	assert.False(t, ds.Has("BigLeak"))
}

func TestERDDAPSource_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	src := NewERDDAPSource(server.URL, 5*time.Second, 0, zap.NewNop())
	_, err := src.Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, models.IsTransportError(err))
}
