package artifacts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/gitcollect/internal/artifacts"
	"github.com/temirov/gitcollect/internal/collect"
)

type recordingSigner struct {
	signedPaths []string
	signError   error
}

func (signer *recordingSigner) Sign(executionContext context.Context, filePath string) (string, error) {
	signer.signedPaths = append(signer.signedPaths, filePath)
	if signer.signError != nil {
		return "", signer.signError
	}
	return filePath + ".asc", nil
}

type upload struct {
	objectKey   string
	filePath    string
	contentType string
}

type recordingUploader struct {
	uploads     []upload
	uploadError error
}

func (uploader *recordingUploader) Upload(executionContext context.Context, objectKey string, filePath string, contentType string) (int64, error) {
	if uploader.uploadError != nil {
		return 0, uploader.uploadError
	}
	uploader.uploads = append(uploader.uploads, upload{objectKey: objectKey, filePath: filePath, contentType: contentType})
	return 2048, nil
}

type failingNotifier struct {
	notifyError error
	calls       int
}

func (notifier *failingNotifier) NotifyChangelog(executionContext context.Context, notification collect.ChangelogNotification) error {
	notifier.calls++
	return notifier.notifyError
}

func testNotification(changelogPath string) collect.ChangelogNotification {
	return collect.ChangelogNotification{
		RunID:     "pipeline/7",
		RunNumber: 7,
		Snapshot:  collect.RepositorySnapshot{SCMName: "my-repo"},
		Path:      changelogPath,
	}
}

func TestObjectKey(testInstance *testing.T) {
	require.Equal(testInstance, "changelogs/pipeline_7/7/my_repo/changelog1.log", artifacts.ObjectKey("changelogs", testNotification("/tmp/run/changelog1.log")))
	require.Equal(testInstance, "pipeline_7/7/my_repo/changelog1.log", artifacts.ObjectKey("", testNotification("/tmp/run/changelog1.log")))
}

func TestArchiveNotifierSignsAndUploadsBothFiles(testInstance *testing.T) {
	signer := &recordingSigner{}
	uploader := &recordingUploader{}
	notifier := &artifacts.ArchiveNotifier{Signer: signer, Uploader: uploader, Prefix: "changelogs"}

	require.NoError(testInstance, notifier.NotifyChangelog(context.Background(), testNotification("/tmp/run/changelog1.log")))
	require.Equal(testInstance, []string{"/tmp/run/changelog1.log"}, signer.signedPaths)
	require.Equal(testInstance, []upload{
		{objectKey: "changelogs/pipeline_7/7/my_repo/changelog1.log", filePath: "/tmp/run/changelog1.log", contentType: "text/plain; charset=utf-8"},
		{objectKey: "changelogs/pipeline_7/7/my_repo/changelog1.log.asc", filePath: "/tmp/run/changelog1.log.asc", contentType: "application/pgp-signature"},
	}, uploader.uploads)
}

func TestArchiveNotifierWithoutSignerUploadsChangelogOnly(testInstance *testing.T) {
	uploader := &recordingUploader{}
	notifier := &artifacts.ArchiveNotifier{Uploader: uploader}

	require.NoError(testInstance, notifier.NotifyChangelog(context.Background(), testNotification("/tmp/run/changelog1.log")))
	require.Len(testInstance, uploader.uploads, 1)
}

func TestArchiveNotifierPropagatesFailures(testInstance *testing.T) {
	signFailure := errors.New("sign failed")
	uploadFailure := errors.New("upload failed")

	testCases := []struct {
		name     string
		notifier *artifacts.ArchiveNotifier
		expected error
	}{
		{
			name:     "signer_failure",
			notifier: &artifacts.ArchiveNotifier{Signer: &recordingSigner{signError: signFailure}, Uploader: &recordingUploader{}},
			expected: signFailure,
		},
		{
			name:     "uploader_failure",
			notifier: &artifacts.ArchiveNotifier{Signer: &recordingSigner{}, Uploader: &recordingUploader{uploadError: uploadFailure}},
			expected: uploadFailure,
		},
	}

	for testCaseIndex := range testCases {
		testCase := testCases[testCaseIndex]
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			notifyError := testCase.notifier.NotifyChangelog(context.Background(), testNotification("/tmp/run/changelog1.log"))
			require.ErrorIs(subTest, notifyError, testCase.expected)
		})
	}
}

func TestLoggingNotifierLogsArtifactSize(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zapcore.InfoLevel)
	notifier := artifacts.NewLoggingNotifier(zap.New(observerCore))
	changelogPath := writeChangelog(testInstance)

	require.NoError(testInstance, notifier.NotifyChangelog(context.Background(), testNotification(changelogPath)))

	entries := observedLogs.FilterMessage("changelog available").All()
	require.Len(testInstance, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(testInstance, changelogPath, fields["path"])
	require.Equal(testInstance, "my-repo", fields["scm_name"])
	require.Equal(testInstance, "65 B", fields["size"])
}

func TestNotifierChainNotifiesEveryMemberAndJoinsFailures(testInstance *testing.T) {
	firstFailure := errors.New("first")
	secondFailure := errors.New("second")
	first := &failingNotifier{notifyError: firstFailure}
	succeeding := &failingNotifier{}
	second := &failingNotifier{notifyError: secondFailure}

	chain := artifacts.NotifierChain{first, nil, succeeding, second}
	chainError := chain.NotifyChangelog(context.Background(), testNotification("/tmp/run/changelog1.log"))

	require.ErrorIs(testInstance, chainError, firstFailure)
	require.ErrorIs(testInstance, chainError, secondFailure)
	require.Equal(testInstance, 1, first.calls)
	require.Equal(testInstance, 1, succeeding.calls)
	require.Equal(testInstance, 1, second.calls)
}

func TestNewNotifierWithoutArchivalOrSigningOnlyLogs(testInstance *testing.T) {
	notifier, notifierError := artifacts.NewNotifier(context.Background(), artifacts.DefaultConfiguration(), zap.NewNop())
	require.NoError(testInstance, notifierError)

	chain, isChain := notifier.(artifacts.NotifierChain)
	require.True(testInstance, isChain)
	require.Len(testInstance, chain, 1)
}

func TestNewNotifierWithSigningKey(testInstance *testing.T) {
	configuration := artifacts.DefaultConfiguration()
	configuration.SigningKeyFile = writeArmoredKey(testInstance, newTestEntity(testInstance), true)

	notifier, notifierError := artifacts.NewNotifier(context.Background(), configuration, zap.NewNop())
	require.NoError(testInstance, notifierError)

	changelogPath := writeChangelog(testInstance)
	require.NoError(testInstance, notifier.NotifyChangelog(context.Background(), testNotification(changelogPath)))
	require.FileExists(testInstance, changelogPath+".asc")
}
