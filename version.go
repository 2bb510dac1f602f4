package arbor

// Version is stamped by release builds via ldflags; source builds say dev.
var Version = "dev"
