package gitrepo

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	schemeSeparatorConstant             = "://"
	fileSchemeConstant                  = "file"
	scpPathDelimiterConstant            = ":"
	pathSeparatorConstant               = "/"
	windowsPathSeparatorConstant        = "\\"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	requiredValueMessageConstant        = "value required"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	invalidSchemeMessageConstant        = "invalid url scheme"
	missingHostMessageConstant          = "missing host"
	missingNameMessageConstant          = "no repository name in path"
	commitIDLengthConstant              = 40
)

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// HumanishName derives the short repository name from a remote URL: the last
// path segment with a trailing ".git" removed. It accepts scheme URLs
// (ssh://, https://, git://, file://), scp-like "user@host:path" remotes and
// plain filesystem paths.
func HumanishName(remote string) (string, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return "", RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}
	if strings.IndexFunc(trimmedRemote, unicode.IsControl) >= 0 {
		return "", RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}

	remotePath, pathError := extractRemotePath(trimmedRemote)
	if pathError != nil {
		return "", pathError
	}

	name := lastPathSegment(remotePath)
	if len(name) == 0 {
		return "", RemoteURLParseError{Input: remote, Message: missingNameMessageConstant}
	}
	return name, nil
}

// extractRemotePath returns the path portion of remote. Whitespace is allowed in paths but not in hosts.
func extractRemotePath(remote string) (string, error) {
	if schemeIndex := strings.Index(remote, schemeSeparatorConstant); schemeIndex >= 0 {
		scheme := remote[:schemeIndex]
		if !isValidScheme(scheme) {
			return "", RemoteURLParseError{Input: remote, Message: invalidSchemeMessageConstant}
		}
		remainder := remote[schemeIndex+len(schemeSeparatorConstant):]
		if strings.EqualFold(scheme, fileSchemeConstant) {
			return remainder, nil
		}
		authorityEnd := strings.Index(remainder, pathSeparatorConstant)
		if authorityEnd == -1 {
			return "", RemoteURLParseError{Input: remote, Message: missingNameMessageConstant}
		}
		if authorityEnd == 0 {
			return "", RemoteURLParseError{Input: remote, Message: missingHostMessageConstant}
		}
		if containsWhitespace(remainder[:authorityEnd]) {
			return "", RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		return remainder[authorityEnd:], nil
	}

	delimiterIndex := strings.Index(remote, scpPathDelimiterConstant)
	separatorIndex := strings.IndexAny(remote, pathSeparatorConstant+windowsPathSeparatorConstant)
	isScpLike := delimiterIndex > 0 && (separatorIndex == -1 || delimiterIndex < separatorIndex) && !isWindowsDrive(remote)
	if isScpLike {
		if containsWhitespace(remote[:delimiterIndex]) {
			return "", RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		return remote[delimiterIndex+1:], nil
	}
	return remote, nil
}

func containsWhitespace(value string) bool {
	return strings.IndexFunc(value, unicode.IsSpace) >= 0
}

func lastPathSegment(remotePath string) string {
	normalized := strings.ReplaceAll(remotePath, windowsPathSeparatorConstant, pathSeparatorConstant)
	normalized = strings.TrimRight(normalized, pathSeparatorConstant)
	if normalized == gitSuffixConstant || strings.HasSuffix(normalized, pathSeparatorConstant+gitSuffixConstant) {
		normalized = strings.TrimSuffix(normalized, gitSuffixConstant)
		normalized = strings.TrimRight(normalized, pathSeparatorConstant)
	}

	segment := normalized
	if separatorIndex := strings.LastIndex(normalized, pathSeparatorConstant); separatorIndex >= 0 {
		segment = normalized[separatorIndex+1:]
	}
	return strings.TrimSuffix(segment, gitSuffixConstant)
}

func isValidScheme(scheme string) bool {
	if len(scheme) == 0 {
		return false
	}
	for index, character := range scheme {
		isLetter := (character >= 'a' && character <= 'z') || (character >= 'A' && character <= 'Z')
		if isLetter {
			continue
		}
		if index > 0 && ((character >= '0' && character <= '9') || character == '+' || character == '-' || character == '.') {
			continue
		}
		return false
	}
	return true
}

func isWindowsDrive(remote string) bool {
	if len(remote) < 3 {
		return false
	}
	driveLetter := rune(remote[0])
	isLetter := (driveLetter >= 'a' && driveLetter <= 'z') || (driveLetter >= 'A' && driveLetter <= 'Z')
	return isLetter && remote[1] == ':' && (remote[2] == '\\' || remote[2] == '/')
}

// IsCommitID reports whether value is a full 40 character hexadecimal commit id.
func IsCommitID(value string) bool {
	if len(value) != commitIDLengthConstant {
		return false
	}
	for _, character := range value {
		isDigit := character >= '0' && character <= '9'
		isLowerHex := character >= 'a' && character <= 'f'
		isUpperHex := character >= 'A' && character <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return true
}
