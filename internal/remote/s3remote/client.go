// Package s3remote implements remote.Client on top of any S3-compatible
// object store (MinIO in development). The mapping:
//
//   - a channel is a key prefix inside the configured bucket
//   - a message is one committed object under that prefix
//   - upload pages are staged as small objects under staging/<fileID>/ and
//     merged into the final object at commit time
//
// Page objects sit far below S3's multipart-copy size floor, so the commit
// streams them through an io.Pipe into a single PutObject instead of using
// server-side multipart copy.
package s3remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/dkravets/chanfile/internal/common"
	"github.com/dkravets/chanfile/internal/logging"
	"github.com/dkravets/chanfile/internal/remote"
)

// test seams, same trick as the server-side S3 wiring
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the subset of the S3 client the package uses.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Options configures a Client.
type Options struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string

	// MaxUploadParts is the pages-per-object cap this backend enforces.
	MaxUploadParts int
}

// Client is the S3-backed remote object client.
type Client struct {
	s3             s3API
	bucket         string
	maxUploadParts int
	log            logging.Logger
}

const (
	channelPrefix = "channels/"
	stagingPrefix = "staging/"
)

// New builds a Client from explicit credentials, the way the development
// MinIO deployment is addressed.
func New(ctx context.Context, opts Options, log logging.Logger) (*Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.User,
			opts.Password,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return NewWithAPI(api, opts, log), nil
}

// NewWithAPI wires a Client over an existing S3 API implementation.
func NewWithAPI(api s3API, opts Options, log logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	maxParts := opts.MaxUploadParts
	if maxParts <= 0 {
		maxParts = 4000
	}
	return &Client{
		s3:             api,
		bucket:         opts.Bucket,
		maxUploadParts: maxParts,
		log:            log,
	}
}

func (c *Client) channelKey(chID string) string {
	return channelPrefix + chID + "/"
}

func (c *Client) stagingKey(fileID uint64, partIndex int) string {
	return fmt.Sprintf("%s%d/%05d", stagingPrefix, fileID, partIndex)
}

// GetChannel checks the bucket is reachable and returns the channel's key
// prefix as its resolved id.
func (c *Client) GetChannel(ctx context.Context, ref remote.ChannelRef) (remote.Channel, error) {
	if ref == "" {
		return remote.Channel{}, fmt.Errorf("%w: empty channel ref", common.ErrChannelNotFound)
	}

	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return remote.Channel{}, mapErr(err, common.ErrChannelNotFound)
	}

	return remote.Channel{ID: string(ref), AccessToken: c.bucket}, nil
}

// GetMessage resolves a committed object of the channel to its document.
func (c *Client) GetMessage(ctx context.Context, ch remote.Channel, msg remote.MessageRef) (remote.Message, error) {
	key := c.channelKey(ch.ID) + string(msg)

	head, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return remote.Message{}, mapErr(err, common.ErrBackendFetch)
	}

	doc := remote.Document{ID: key, AccessToken: ch.AccessToken}
	if head.ETag != nil {
		doc.FileRef = *head.ETag
	}
	return remote.Message{ID: string(msg), Document: doc}, nil
}

// GetFilePage fetches one page of a document via a ranged read.
func (c *Client) GetFilePage(ctx context.Context, doc remote.Document, offset uint64, limit int) ([]byte, error) {
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(limit)-1)

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(doc.ID),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, mapErr(err, common.ErrBackendFetch)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read page body: %w", common.ErrBackendFetch, err)
	}
	return data, nil
}

// SendFilePart stages one page object. totalParts is carried by the commit
// and is not needed here beyond logging.
func (c *Client) SendFilePart(ctx context.Context, fileID uint64, partIndex, totalParts int, data []byte) error {
	key := c.stagingKey(fileID, partIndex)

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return mapErr(err, common.ErrBackendPush)
	}

	c.log.Debug(ctx, "page staged", "key", key, "bytes", len(data), "total_parts", totalParts)
	return nil
}

// MoveFileToChannel merges the staged pages of fileID, in page order, into a
// single committed object under the channel prefix and removes the staging
// objects.
func (c *Client) MoveFileToChannel(ctx context.Context, ch remote.Channel, req remote.CommitRequest) (remote.Committed, error) {
	prefix := fmt.Sprintf("%s%d/", stagingPrefix, req.FileID)

	staged, err := c.listStaged(ctx, prefix)
	if err != nil {
		return remote.Committed{}, err
	}
	if len(staged) == 0 {
		return remote.Committed{}, fmt.Errorf("%w: no staged pages under %s", common.ErrBackendPush, prefix)
	}
	if req.Parts > 0 && len(staged) != req.Parts {
		return remote.Committed{}, fmt.Errorf("%w: staged %d pages, commit expects %d", common.ErrBackendPush, len(staged), req.Parts)
	}

	var totalSize int64
	for _, obj := range staged {
		totalSize += aws.ToInt64(obj.Size)
	}

	msgID := uuid.NewString()
	finalKey := c.channelKey(ch.ID) + msgID

	// page objects are too small for UploadPartCopy, so stream them through
	// a pipe into one put
	pr, pw := io.Pipe()
	go func() {
		for _, obj := range staged {
			out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				pw.CloseWithError(fmt.Errorf("get staged page %s: %w", aws.ToString(obj.Key), err))
				return
			}
			_, err = io.Copy(pw, out.Body)
			out.Body.Close()
			if err != nil {
				pw.CloseWithError(fmt.Errorf("copy staged page %s: %w", aws.ToString(obj.Key), err))
				return
			}
		}
		pw.Close()
	}()

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(c.bucket),
		Key:                aws.String(finalKey),
		Body:               pr,
		ContentLength:      aws.Int64(totalSize),
		ContentType:        aws.String(req.MIME),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", req.Filename)),
	})
	if err != nil {
		pr.CloseWithError(err)
		return remote.Committed{}, mapErr(err, common.ErrBackendPush)
	}

	if err := c.deletePrefix(ctx, staged); err != nil {
		// the commit itself succeeded; staging leftovers are only garbage
		c.log.Warn(ctx, "failed to clean staging prefix", "prefix", prefix, "error", err)
	}

	c.log.Info(ctx, "file committed", "key", finalKey, "pages", len(staged), "bytes", totalSize)

	return remote.Committed{
		MessageID:  msgID,
		DocumentID: finalKey,
		Filename:   req.Filename,
	}, nil
}

// MaxUploadParts reports the configured pages-per-object cap.
func (c *Client) MaxUploadParts(ctx context.Context) (int, error) {
	return c.maxUploadParts, nil
}

// listStaged walks the whole prefix; a single list call tops out at 1000
// keys and portions can hold more pages than that.
func (c *Client) listStaged(ctx context.Context, prefix string) ([]types.Object, error) {
	var objects []types.Object

	p := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapErr(err, common.ErrBackendPush)
		}
		objects = append(objects, page.Contents...)
	}

	// keys embed a zero-padded page index, so byte order is page order
	sort.Slice(objects, func(i, j int) bool {
		return aws.ToString(objects[i].Key) < aws.ToString(objects[j].Key)
	})
	return objects, nil
}

// deleteBatchSize is the DeleteObjects per-request key limit.
const deleteBatchSize = 1000

func (c *Client) deletePrefix(ctx context.Context, objects []types.Object) error {
	ids := make([]types.ObjectIdentifier, 0, len(objects))
	for _, obj := range objects {
		ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
	}

	for len(ids) > 0 {
		batch := ids[:min(deleteBatchSize, len(ids))]
		ids = ids[len(batch):]

		_, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// mapErr translates S3 API failures onto the sentinel taxonomy, defaulting
// to fallback for anything unrecognized.
func mapErr(err error, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: %w", common.ErrChannelNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %w", common.ErrAccessDenied, err)
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
