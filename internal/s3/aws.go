package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// deleteBatchLimit is the S3 DeleteObjects maximum.
const deleteBatchLimit = 1000

// AWSClient is the aws-sdk-go-v2 backed Store.
type AWSClient struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	region  string
}

var _ Store = (*AWSClient)(nil)

func NewAWS(opts Options) (*AWSClient, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
	}
	base := baseEndpoint(opts.Endpoint, opts.UseSSL)
	if base != "" {
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("s3: aws endpoint %q: %w", opts.Endpoint, err)
		}
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if base != "" {
			o.BaseEndpoint = aws.String(base)
		}
		o.UsePathStyle = usePathStyle(opts.Endpoint)
	})
	return &AWSClient{client: client, presign: awss3.NewPresignClient(client), region: region}, nil
}

func baseEndpoint(endpoint string, useSSL bool) string {
	host, secure := normalizeEndpoint(endpoint, useSSL)
	if host == "" {
		return ""
	}
	if secure {
		return "https://" + host
	}
	return "http://" + host
}

// usePathStyle is true for every custom endpoint; AWS itself prefers
// virtual-hosted addressing.
func usePathStyle(endpoint string) bool {
	e := strings.ToLower(strings.TrimSpace(endpoint))
	return e != "" && !strings.Contains(e, "amazonaws.com")
}

// classifyAWS maps smithy API error codes onto the package sentinels.
// notFound is the sentinel a bare 404 ("NotFound", from HEAD requests) means
// for the calling operation.
func classifyAWS(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.ErrorCode() {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrNoSuchBucket, err)
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return fmt.Errorf("%w: %w", ErrBucketExists, err)
	case "InvalidBucketName":
		return fmt.Errorf("%w: %w", ErrInvalidBucketName, err)
	case "NoSuchKey":
		return fmt.Errorf("%w: %w", ErrNoSuchKey, err)
	case "BucketNotEmpty":
		return fmt.Errorf("%w: %w", ErrBucketNotEmpty, err)
	case "NotFound":
		if notFound != nil {
			return fmt.Errorf("%w: %w", notFound, err)
		}
	}
	return err
}

func (c *AWSClient) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	var out []BucketInfo
	p := awss3.NewListBucketsPaginator(c.client, &awss3.ListBucketsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyAWS(err, nil)
		}
		for _, b := range page.Buckets {
			out = append(out, BucketInfo{Name: aws.ToString(b.Name), CreationDate: aws.ToTime(b.CreationDate)})
		}
	}
	return out, nil
}

func (c *AWSClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if err = classifyAWS(err, ErrNoSuchBucket); errors.Is(err, ErrNoSuchBucket) {
		return false, nil
	}
	return false, err
}

func (c *AWSClient) CreateBucket(ctx context.Context, bucket string) error {
	in := &awss3.CreateBucketInput{Bucket: aws.String(bucket)}
	if c.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	_, err := c.client.CreateBucket(ctx, in)
	return classifyAWS(err, nil)
}

func (c *AWSClient) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := c.client.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(bucket)})
	return classifyAWS(err, ErrNoSuchBucket)
}

func (c *AWSClient) GetBucketTags(ctx context.Context, bucket string) (map[string]string, error) {
	out, err := c.client.GetBucketTagging(ctx, &awss3.GetBucketTaggingInput{Bucket: aws.String(bucket)})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && strings.HasPrefix(ae.ErrorCode(), "NoSuchTagSet") {
			return map[string]string{}, nil
		}
		return nil, classifyAWS(err, ErrNoSuchBucket)
	}
	m := make(map[string]string, len(out.TagSet))
	for _, t := range out.TagSet {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m, nil
}

func (c *AWSClient) SetBucketTags(ctx context.Context, bucket string, m map[string]string) error {
	set := make([]types.Tag, 0, len(m))
	for k, v := range m {
		set = append(set, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := c.client.PutBucketTagging(ctx, &awss3.PutBucketTaggingInput{
		Bucket:  aws.String(bucket),
		Tagging: &types.Tagging{TagSet: set},
	})
	return classifyAWS(err, ErrNoSuchBucket)
}

// ListObjects emits each page's files before its common prefixes, the same
// order minio-go produces.
func (c *AWSClient) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]ObjectInfo, error) {
	in := &awss3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if !recursive {
		in.Delimiter = aws.String("/")
	}
	var out []ObjectInfo
	p := awss3.NewListObjectsV2Paginator(c.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyAWS(err, ErrNoSuchBucket)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			info := ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
				ETag:         strings.Trim(aws.ToString(o.ETag), `"`),
				StorageClass: string(o.StorageClass),
				IsLatest:     true,
				IsDir:        isDirKey(key),
			}
			if o.Owner != nil {
				info.Owner = Owner{DisplayName: aws.ToString(o.Owner.DisplayName), ID: aws.ToString(o.Owner.ID)}
			}
			out = append(out, info)
		}
		for _, cp := range page.CommonPrefixes {
			out = append(out, ObjectInfo{Key: aws.ToString(cp.Prefix), IsDir: true})
		}
	}
	return out, nil
}

func (c *AWSClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	head, err := c.client.HeadObject(ctx, &awss3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, ObjectInfo{}, classifyAWS(err, ErrNoSuchKey)
	}
	obj, err := c.client.GetObject(ctx, &awss3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, ObjectInfo{}, classifyAWS(err, ErrNoSuchKey)
	}
	info := ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(head.ContentLength),
		LastModified: aws.ToTime(head.LastModified),
		ETag:         strings.Trim(aws.ToString(head.ETag), `"`),
		StorageClass: string(head.StorageClass),
		VersionID:    aws.ToString(head.VersionId),
		UserMetadata: head.Metadata,
		IsDir:        isDirKey(key),
	}
	return obj.Body, info, nil
}

func (c *AWSClient) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &awss3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return classifyAWS(err, nil)
}

func (c *AWSClient) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error) {
	failed := map[string]error{}
	for start := 0; start < len(keys); start += deleteBatchLimit {
		end := min(start+deleteBatchLimit, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := c.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return nil, classifyAWS(err, ErrNoSuchBucket)
		}
		for _, e := range out.Errors {
			failed[aws.ToString(e.Key)] = fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}
	res := make([]DeleteResult, 0, len(keys))
	for _, k := range keys {
		res = append(res, DeleteResult{Key: k, Err: failed[k]})
	}
	return res, nil
}

func (c *AWSClient) PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
	req, err := c.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(expiry))
	if err != nil {
		return nil, classifyAWS(err, nil)
	}
	return url.Parse(req.URL)
}
