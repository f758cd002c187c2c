// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCookieRoundTrip(t *testing.T) {
	key, err := newCookieSigningKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	cookie := buildStateCookie(key, now, 0x1111, 0x2222, 100, 200)

	localTag, remoteTag, localTSN, remoteTSN, err := verifyStateCookie(key, now.Add(time.Second), cookie)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1111), localTag)
	assert.Equal(t, uint32(0x2222), remoteTag)
	assert.Equal(t, uint32(100), localTSN)
	assert.Equal(t, uint32(200), remoteTSN)
}

func TestStateCookieStale(t *testing.T) {
	key, err := newCookieSigningKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	cookie := buildStateCookie(key, now, 1, 2, 3, 4)

	_, _, _, _, err = verifyStateCookie(key, now.Add(cookieLifetime+time.Second), cookie)
	assert.ErrorIs(t, err, ErrCookieStale)
}

func TestStateCookieBadMAC(t *testing.T) {
	key, err := newCookieSigningKey()
	require.NoError(t, err)
	other, err := newCookieSigningKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	cookie := buildStateCookie(key, now, 1, 2, 3, 4)

	_, _, _, _, err = verifyStateCookie(other, now, cookie)
	assert.ErrorIs(t, err, ErrCookieInvalid)
}

func TestStateCookieTooShort(t *testing.T) {
	key, err := newCookieSigningKey()
	require.NoError(t, err)

	_, _, _, _, err = verifyStateCookie(key, time.Now(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortCookie)
}
