// Package logging provides structured logging with OpenTelemetry integration.
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, vfs.profile, vfs.requester, request.id)
//   - Per component levels
//   - Redaction and identity hashing on every output
//   - Per message sampling (denials and errors never sampled)
//
// # Usage
//
//	cfg, err := logging.FromAppConfig(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithAccess(ctx, profile, requester)
//	logger.Info(ctx, "item saved", zap.String("path", p.String()))
//
// Library packages (vectorfs, store, embeddings) take the *zap.Logger from
// Underlying() and log without the context helpers.
//
// # Redaction
//
// Both outputs apply DefaultRedactionConfig unless configured otherwise:
//   - credential keys (api_key, authorization, token) are replaced
//   - requester and whitelist identities are hashed with HashIdentity, so
//     one requester can be followed through the logs without naming it
//   - values that look like provider keys or bearer tokens are replaced
//
// config.Secret values are logged with Secret, which writes a fingerprint.
//
// # Levels and sampling
//
// logging.components sets levels per named logger ("vectorfs": debug).
// Sampling is per message: reader and writer denials are never dropped,
// per request and per item messages are thinned, errors always pass.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertNoSecrets(t)
//	tl.AssertNotWritten(t, requester.String())
package logging
