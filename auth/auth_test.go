package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("A_32_BYTE_MINIMUM_SIGNING_SECRET")

func TestToken_Roundtrip(t *testing.T) {
	req := require.New(t)

	// When issuing a token carrying two capabilities
	token, err := GenerateToken(testSecret, "alice", []string{"connect", "send.system"}, time.Hour)
	req.NoError(err)
	req.NotEmpty(token)

	// Then validation returns the same identity and capabilities
	claims, err := ValidateToken(testSecret, token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)
	req.Equal([]string{"connect", "send.system"}, claims.Capabilities)
	req.Equal("relay-lab", claims.Issuer)
}

func TestToken_Wrong_Secret_Is_Rejected(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testSecret, "alice", []string{"connect"}, time.Hour)
	req.NoError(err)

	_, err = ValidateToken([]byte("ANOTHER_32_BYTE_SIGNING_SECRET_!"), token)

	req.Error(err)
}

func TestToken_Expired_Is_Rejected(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testSecret, "alice", []string{"connect"}, -time.Minute)
	req.NoError(err)

	_, err = ValidateToken(testSecret, token)

	req.Error(err)
}

func TestSecret_Hash_And_Compare(t *testing.T) {
	req := require.New(t)

	hash, err := HashSecret("correct horse battery staple")
	req.NoError(err)
	req.Contains(hash, "$argon2id$")

	match, err := CompareSecret("correct horse battery staple", hash)
	req.NoError(err)
	req.True(match)

	match, err = CompareSecret("wrong guess", hash)
	req.NoError(err)
	req.False(match)
}

func TestSecret_Hashes_Are_Salted(t *testing.T) {
	req := require.New(t)

	hash1, err := HashSecret("same secret")
	req.NoError(err)
	hash2, err := HashSecret("same secret")
	req.NoError(err)

	// Two hashes of the same input differ through the random salt
	req.NotEqual(hash1, hash2)
}

func TestSecret_Malformed_Hash_Fails(t *testing.T) {
	req := require.New(t)

	_, err := CompareSecret("anything", "not-an-encoded-hash")

	req.Error(err)
}

func TestStore_Grant_And_Check(t *testing.T) {
	req := require.New(t)
	store := NewStore()
	ctx := context.Background()

	// An unknown user holds nothing
	req.False(store.HasPermission(ctx, "alice", "connect"))

	// When granted, exactly the listed capabilities hold
	store.Grant("alice", "connect")
	req.True(store.HasPermission(ctx, "alice", "connect"))
	req.False(store.HasPermission(ctx, "alice", "send.system"))

	// A new grant replaces the previous one
	store.Grant("alice", "send.system")
	req.False(store.HasPermission(ctx, "alice", "connect"))
	req.True(store.HasPermission(ctx, "alice", "send.system"))
}

func TestStore_Revoke_Drops_Everything(t *testing.T) {
	req := require.New(t)
	store := NewStore()
	ctx := context.Background()

	store.Grant("alice", "connect", "send.system")
	store.Revoke("alice")

	req.False(store.HasPermission(ctx, "alice", "connect"))
	req.False(store.HasPermission(ctx, "alice", "send.system"))
}
