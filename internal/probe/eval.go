package probe

// The probe JS runs inside the video's own tab. It prefers the page-embedded
// player-response JSON over rendered markup (the JSON survives UI redesigns),
// reads the media element for playback position, and only falls back to the
// visible live badge and duration label when structured data is missing or
// ambiguous. The page's own video id is always reported so the reconciler
// can detect SPA navigations that left stale data behind.

const jsMediaPreamble = `
var media = document.querySelector("video.html5-main-video") || document.querySelector("video");
var pr = window.ytInitialPlayerResponse || null;
var details = pr && pr.videoDetails ? pr.videoDetails : null;
var mf = pr && pr.microformat && pr.microformat.playerMicroformatRenderer ? pr.microformat.playerMicroformatRenderer : null;
var lb = mf && mf.liveBroadcastDetails ? mf.liveBroadcastDetails : null;`

func jsGetVideoMetadata() string {
	return wrapJSEval(jsMediaPreamble + `
var out = {
  video_id: "", title: "", author: "",
  length_seconds: 0, media_duration: 0, current_time: 0,
  is_live_flag: false, started_without_end: false, badge_visible: false,
  duration_label: "", has_structured_data: false
};
if (details) {
  out.has_structured_data = true;
  out.video_id = String(details.videoId || "");
  out.title = String(details.title || "");
  out.author = String(details.author || "");
  var len = parseInt(details.lengthSeconds, 10);
  if (isFinite(len) && len > 0) out.length_seconds = len;
  out.is_live_flag = details.isLive === true;
}
if (lb) {
  if (lb.isLiveNow === true) out.is_live_flag = true;
  out.started_without_end = !!lb.startTimestamp && !lb.endTimestamp;
}
if (media) {
  if (isFinite(media.duration) && media.duration > 0) out.media_duration = media.duration;
  if (isFinite(media.currentTime) && media.currentTime > 0) out.current_time = media.currentTime;
}
if (!out.title) out.title = String(document.title || "").replace(/ - YouTube$/, "");
var badge = document.querySelector(".ytp-live-badge");
if (badge && badge.offsetParent !== null && !badge.getAttribute("disabled")) out.badge_visible = true;
var label = document.querySelector(".ytp-time-duration");
if (label) out.duration_label = String(label.textContent || "").trim();
return JSON.stringify({ok:true,data:out});
`)
}

func jsGetPlayback() string {
	return wrapJSEval(jsMediaPreamble + `
var out = {video_id: "", current_time: 0, seconds: 0};
if (details) out.video_id = String(details.videoId || "");
if (media) {
  if (isFinite(media.currentTime) && media.currentTime > 0) out.current_time = media.currentTime;
  if (isFinite(media.duration) && media.duration > 0) out.seconds = Math.round(media.duration);
}
return JSON.stringify({ok:true,data:out});
`)
}

func buildIIFE(body string) string {
	return "(function(){\n" + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string { return buildIIFE(body) }
