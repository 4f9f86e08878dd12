package capabilities_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/worldkernel/node/pkg/capabilities"
)

func TestGrant_Allows(t *testing.T) {
	g := capabilities.Grant{Name: "cap_http", EffectKinds: []string{"http.*"}}
	assert.True(t, g.Allows("http.request"))
	assert.False(t, g.Allows("disk.write"))

	all := capabilities.Grant{Name: "cap_all", EffectKinds: []string{"*"}}
	assert.True(t, all.Allows("anything"))

	exact := capabilities.Grant{Name: "cap_exact", EffectKinds: []string{"http.request"}}
	assert.True(t, exact.Allows("http.request"))
	assert.False(t, exact.Allows("http.requests"))
}

func TestGrant_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	g := capabilities.Grant{Name: "cap_x", Expiry: &past}
	assert.True(t, g.Expired(time.Now()))

	future := time.Now().Add(time.Hour)
	g2 := capabilities.Grant{Name: "cap_y", Expiry: &future}
	assert.False(t, g2.Expired(time.Now()))

	g3 := capabilities.Grant{Name: "cap_z"}
	assert.False(t, g3.Expired(time.Now()))
}

func TestRegistry_PutLookupRemove(t *testing.T) {
	r := capabilities.NewRegistry()
	r.Put(capabilities.Grant{Name: "cap_all", EffectKinds: []string{"*"}})

	g, ok := r.Lookup("cap_all")
	assert.True(t, ok)
	assert.Equal(t, "cap_all", g.Name)

	r.Remove("cap_all")
	_, ok = r.Lookup("cap_all")
	assert.False(t, ok)
}
